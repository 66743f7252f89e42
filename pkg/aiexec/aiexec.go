// Package aiexec defines the contract for running one AI agent call against
// a working tree and provides a CLI-backed implementation for codex and
// claude.
package aiexec

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderAuto   = "auto"
	ProviderCodex  = "codex"
	ProviderClaude = "claude"
)

// Sandbox selects what the agent may do to the working tree.
type Sandbox string

// Sandbox modes.
const (
	ReadOnly       Sandbox = "read-only"
	WorkspaceWrite Sandbox = "workspace-write"
)

// DefaultTimeout applies when a Request has no timeout.
const DefaultTimeout = 30 * time.Minute

// Request is one agent invocation.
type Request struct {
	Prompt               string
	Provider             string
	Model                string // empty uses the provider default
	Dir                  string
	Timeout              time.Duration
	Sandbox              Sandbox
	MaxConcurrentWorkers int // 0 leaves the provider default
}

// Result is the outcome of one invocation. Output is opaque agent text.
type Result struct {
	OK           bool
	Output       string
	ProviderUsed string
	Warning      string
	Err          error
}

// Executor runs agent calls. Implementations block until the call ends
// or its timeout fires.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// OrchestrationCapable reports whether provider can run the planner,
// orchestrator and worker roles of a decomposed pass.
func OrchestrationCapable(provider string) bool {
	return provider == ProviderCodex
}

// Status is the terminal status an agent reports at the end of its output.
type Status string

// Known statuses. StatusUnknown means no marker was found.
const (
	StatusComplete Status = "COMPLETE"
	StatusContinue Status = "CONTINUE"
	StatusUnknown  Status = ""
)

// StatusTag is the marker prefix agents are asked to print.
const StatusTag = "REFLOOP_STATUS"

// markerWindow is how many trailing non-empty lines are searched.
const markerWindow = 8

var statusLine = regexp.MustCompile("(?i)STATUS\\s*:\\s*[*_`]*\\s*(COMPLETE|CONTINUE)\\b")

// ParseStatus returns the last status marker in the final lines of output.
func ParseStatus(output string) Status {
	lines := strings.Split(strings.TrimRight(output, "\n\r\t "), "\n")
	seen := 0
	for i := len(lines) - 1; i >= 0 && seen < markerWindow; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		seen++
		if m := statusLine.FindAllStringSubmatch(line, -1); m != nil {
			return Status(strings.ToUpper(m[len(m)-1][1]))
		}
	}
	return StatusUnknown
}

// HasTerminalMarker reports whether output ends with a status marker.
func HasTerminalMarker(output string) bool {
	return ParseStatus(output) != StatusUnknown
}

// Package verify runs the project's lint, test and build commands after a
// pass and separates real defects from environment problems.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultTimeout bounds one verification command.
const DefaultTimeout = 10 * time.Minute

const (
	outputTail = 4000
	waitDelay  = 5 * time.Second
	exitNoCmd  = 127
)

// Failure reasons that do not point at the code.
const (
	ReasonTimeout       = "timeout"
	ReasonNotInstalled  = "tool not installed"
	ReasonMissingScript = "missing script"
	ReasonLock          = "lock contention"
)

var (
	notInstalled  = regexp.MustCompile(`(?i)(command not found|executable file not found|no such file or directory: ['"]?\w+|is not recognized as an internal or external command)`)
	missingScript = regexp.MustCompile(`(?i)(missing script|no such task|unknown target|no rule to make target|task ".*" (does not exist|not found)|could not find task)`)
	lockHeld      = regexp.MustCompile(`(?i)(could not acquire lock|unable to acquire lock|index\.lock|database is locked|waiting for file lock|another .* process|lock file .* exists|resource temporarily unavailable)`)
)

// Failure is one failed command.
type Failure struct {
	Command    string
	ExitCode   int // -1 when the command did not exit on its own
	Output     string
	Actionable bool
	Reason     string // set when not actionable
}

func (f Failure) String() string {
	head := fmt.Sprintf("$ %s (exit %d)", f.Command, f.ExitCode)
	if !f.Actionable {
		head += " [" + f.Reason + "]"
	}
	if f.Output == "" {
		return head
	}
	return head + "\n" + f.Output
}

// Report is the outcome of one verification run.
type Report struct {
	Passed   []string
	Failures []Failure
}

// OK reports whether every command passed.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Actionable returns the failures that point at the code.
func (r Report) Actionable() []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Actionable {
			out = append(out, f)
		}
	}
	return out
}

// Runner executes verification commands through sh -c.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner returns a Runner. A zero timeout uses DefaultTimeout.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run executes commands in dir, in order. A failing command does not stop
// the remaining ones.
func (r *Runner) Run(ctx context.Context, dir string, commands []string) Report {
	var rep Report
	for _, c := range commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		start := time.Now()
		f, ok := r.runOne(ctx, dir, c)
		if ok {
			rep.Passed = append(rep.Passed, c)
			r.logger.Info("verification passed", "cmd", c, "elapsed", time.Since(start).Round(time.Millisecond))
			continue
		}
		rep.Failures = append(rep.Failures, f)
		r.logger.Warn("verification failed", "cmd", c, "exit", f.ExitCode, "actionable", f.Actionable, "reason", f.Reason)
	}
	return rep
}

func (r *Runner) runOne(ctx context.Context, dir, command string) (Failure, bool) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(cctx, "sh", "-c", command) //nolint:gosec // commands come from the user's own config
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return Failure{}, true
	}

	f := Failure{Command: command, ExitCode: -1, Output: tail(out.String())}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		f.ExitCode = exitErr.ExitCode()
	}
	if cctx.Err() != nil {
		f.Reason = ReasonTimeout
		return f, false
	}
	f.Reason = Classify(f.ExitCode, f.Output)
	f.Actionable = f.Reason == ""
	return f, false
}

// Classify returns the non-actionable reason for a failed command, or "" when
// the failure is a real defect.
func Classify(exitCode int, output string) string {
	switch {
	case exitCode == exitNoCmd || notInstalled.MatchString(output):
		return ReasonNotInstalled
	case missingScript.MatchString(output):
		return ReasonMissingScript
	case lockHeld.MatchString(output):
		return ReasonLock
	default:
		return ""
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= outputTail {
		return s
	}
	return "..." + s[len(s)-outputTail:]
}

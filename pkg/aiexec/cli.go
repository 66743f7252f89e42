package aiexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxWorkersEnv passes the worker limit to agents that honour it.
const MaxWorkersEnv = "REFLOOP_MAX_CONCURRENT_WORKERS"

// stderrTail bounds the stderr excerpt attached to errors.
const stderrTail = 2000

// CLIExecutor runs agent calls through the codex or claude command line.
type CLIExecutor struct {
	spawner  Spawner
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewCLIExecutor returns an executor that spawns real processes.
func NewCLIExecutor(logger *slog.Logger) *CLIExecutor {
	return NewCLIExecutorWith(ExecSpawner{}, exec.LookPath, logger)
}

// NewCLIExecutorWith returns an executor with injected process plumbing.
func NewCLIExecutorWith(sp Spawner, lookPath func(string) (string, error), logger *slog.Logger) *CLIExecutor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLIExecutor{spawner: sp, lookPath: lookPath, logger: logger}
}

// Resolve maps a provider name to an installed CLI. "auto" picks the first
// of codex and claude found on PATH.
func (e *CLIExecutor) Resolve(provider string) (string, error) {
	switch provider {
	case "", ProviderAuto:
		for _, p := range []string{ProviderCodex, ProviderClaude} {
			if _, err := e.lookPath(p); err == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("%w: neither codex nor claude is installed", ErrProviderNotFound)
	case ProviderCodex, ProviderClaude:
		if _, err := e.lookPath(provider); err != nil {
			return "", fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
		}
		return provider, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want auto, codex or claude)", provider)
	}
}

// Execute runs one call. A call that times out still succeeds, with a
// warning, when its output already ends with a terminal status marker.
func (e *CLIExecutor) Execute(ctx context.Context, req Request) Result {
	provider, err := e.Resolve(req.Provider)
	if err != nil {
		return Result{Err: err}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callID := uuid.NewString()
	log := e.logger.With("call", callID, "provider", provider, "sandbox", string(req.Sandbox))
	log.Info("agent call start", "model", req.Model, "timeout", timeout, "prompt_bytes", len(req.Prompt))

	var extra []string
	if req.MaxConcurrentWorkers > 0 {
		extra = append(extra, MaxWorkersEnv+"="+strconv.Itoa(req.MaxConcurrentWorkers))
	}

	start := time.Now()
	proc, err := e.spawner.Spawn(ctx, provider, buildArgs(provider, req), req.Dir, agentEnv(extra...))
	if err != nil {
		return Result{ProviderUsed: provider, Err: err}
	}

	res := e.wait(ctx, proc, provider, timeout)
	log.Info("agent call end", "ok", res.OK, "elapsed", time.Since(start).Round(time.Second), "warning", res.Warning)
	if res.Err != nil {
		log.Warn("agent call failed", "err", res.Err)
	}
	return res
}

func (e *CLIExecutor) wait(ctx context.Context, proc Process, provider string, timeout time.Duration) Result {
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return finish(provider, proc, waitErr)
	case <-timer.C:
		_ = proc.Kill()
		<-done
		out, _ := normalizeOutput(provider, proc.Output())
		if HasTerminalMarker(out) {
			return Result{
				OK:           true,
				Output:       out,
				ProviderUsed: provider,
				Warning:      fmt.Sprintf("%s call hit the %v timeout after reporting a terminal status; keeping its result", provider, timeout),
			}
		}
		return Result{Output: out, ProviderUsed: provider, Err: &TimeoutError{Provider: provider, Timeout: timeout}}
	case <-ctx.Done():
		_ = proc.Kill()
		<-done
		return Result{ProviderUsed: provider, Err: ctx.Err()}
	}
}

// finish interprets a process that exited on its own. The agent's own
// terminal status is trusted over a non-zero exit code.
func finish(provider string, proc Process, waitErr error) Result {
	out, agentErr := normalizeOutput(provider, proc.Output())
	res := Result{Output: out, ProviderUsed: provider}

	switch {
	case agentErr != nil:
		res.Err = agentErr
	case waitErr == nil:
		res.OK = true
	case HasTerminalMarker(out):
		res.OK = true
		res.Warning = fmt.Sprintf("%s exited with %v after reporting a terminal status", provider, waitErr)
	default:
		res.Err = &ExitError{Provider: provider, Stderr: tail(proc.Stderr(), stderrTail), Err: waitErr}
	}
	return res
}

// buildArgs renders the provider command line for req.
func buildArgs(provider string, req Request) []string {
	switch provider {
	case ProviderClaude:
		mode := "plan"
		if req.Sandbox == WorkspaceWrite {
			mode = "acceptEdits"
		}
		args := []string{"-p", req.Prompt, "--output-format", "json", "--permission-mode", mode}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		return args
	default:
		sandbox := req.Sandbox
		if sandbox == "" {
			sandbox = ReadOnly
		}
		args := []string{"exec", "--sandbox", string(sandbox), "--skip-git-repo-check"}
		if req.Dir != "" {
			args = append(args, "--cd", req.Dir)
		}
		if req.Model != "" {
			args = append(args, "--model", req.Model)
		}
		return append(args, req.Prompt)
	}
}

// claudeEnvelope is the --output-format json result object.
type claudeEnvelope struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	IsError bool   `json:"is_error"`
}

// normalizeOutput unwraps provider envelopes so callers see agent text.
func normalizeOutput(provider, raw string) (string, error) {
	if provider != ProviderClaude {
		return raw, nil
	}
	var env claudeEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &env); err != nil || env.Type == "" {
		return raw, nil
	}
	if env.IsError {
		return env.Result, errors.New("claude reported an error: " + tail(env.Result, stderrTail))
	}
	return env.Result, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

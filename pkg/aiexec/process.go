package aiexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the agent
// process itself has exited or been killed.
const waitDelay = 5 * time.Second

// Process is a running agent subprocess.
type Process interface {
	Wait() error
	Kill() error
	Output() string // stdout so far
	Stderr() string
}

// Spawner starts agent subprocesses.
type Spawner interface {
	Spawn(ctx context.Context, name string, args []string, dir string, env []string) (Process, error)
}

// ExecSpawner implements Spawner using os/exec.
type ExecSpawner struct{}

// Spawn starts name with args in dir. Stdin is empty so the agent never
// waits on a terminal.
func (ExecSpawner) Spawn(ctx context.Context, name string, args []string, dir string, env []string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // args are built from internal prompt text
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = strings.NewReader("")
	cmd.WaitDelay = waitDelay

	p := &execProcess{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", name, err)
	}
	return p, nil
}

// agentEnv returns the current environment without CLAUDECODE* variables,
// which alter the behaviour of a nested claude process.
func agentEnv(extra ...string) []string {
	env := slices.DeleteFunc(os.Environ(), func(e string) bool {
		return strings.HasPrefix(e, "CLAUDECODE")
	})
	return append(env, extra...)
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout lockedBuffer
	stderr lockedBuffer
}

func (p *execProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	return nil
}

func (p *execProcess) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill: %w", err)
	}
	return nil
}

func (p *execProcess) Output() string { return p.stdout.String() }
func (p *execProcess) Stderr() string { return p.stderr.String() }

// lockedBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"refloop/pkg/aiexec"
	"refloop/pkg/backlog"
	"refloop/pkg/checkpoint"
	"refloop/pkg/config"
	"refloop/pkg/controller"
	"refloop/pkg/eventlog"
)

// execute runs the root command in-process and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestExitCode(t *testing.T) {
	be := &controller.BacklogError{Kind: controller.ErrStalled, Passes: 2}
	if got := exitCode(fmt.Errorf("run: %w", be)); got != exitBacklog {
		t.Errorf("exitCode(BacklogError) = %d, want %d", got, exitBacklog)
	}
	if got := exitCode(errors.New("boom")); got != exitError {
		t.Errorf("exitCode(other) = %d, want %d", got, exitError)
	}
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()

	p, err := ResolvePaths(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.StateDir != filepath.Join(dir, ".refloop") {
		t.Errorf("StateDir = %s", p.StateDir)
	}
	if p.CheckpointPath != filepath.Join(dir, ".refloop", "checkpoint.json") {
		t.Errorf("CheckpointPath = %s", p.CheckpointPath)
	}
	if p.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty without a config file", p.ConfigPath)
	}

	writeSource(t, dir, ".refloop/config.yaml", "run:\n  passes: 2\n")
	p, _ = ResolvePaths(dir, "")
	if p.ConfigPath != filepath.Join(dir, ".refloop", "config.yaml") {
		t.Errorf("ConfigPath = %q, want the state dir config", p.ConfigPath)
	}
}

func TestResolvePaths_EnvOverrides(t *testing.T) {
	state := t.TempDir()
	t.Setenv("REFLOOP_STATE_DIR", state)
	t.Setenv("REFLOOP_HISTORY_DB", "/tmp/elsewhere.db")

	p, err := ResolvePaths(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if p.StateDir != state || p.CheckpointPath != filepath.Join(state, checkpoint.FileName) {
		t.Errorf("paths = %+v, want state dir override", p)
	}
	if p.HistoryPath != "/tmp/elsewhere.db" {
		t.Errorf("HistoryPath = %s", p.HistoryPath)
	}
}

func TestScanCmd_JSON(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package main\n\n// TODO: split\nfunc main() {}\n")

	out, err := execute(t, "scan", "-C", dir, "--json")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var rs backlog.RepoScan
	if err := json.Unmarshal([]byte(out), &rs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if rs.ScannedSourceFiles != 1 || len(rs.DebtCandidates) != 1 {
		t.Errorf("scan = %d files, %d debt candidates; want 1/1", rs.ScannedSourceFiles, len(rs.DebtCandidates))
	}
}

func TestScanCmd_Table(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "pkg/util.go", "package pkg\n\n// TODO: remove\nfunc F() {}\n")

	out, err := execute(t, "scan", "-C", dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, want := range []string{"scan of", "debt=1", "pkg/util.go", "1 candidates"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusCmd(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "status", "-C", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No checkpoint") {
		t.Errorf("output = %q, want no checkpoint", out)
	}

	store := checkpoint.NewStore(filepath.Join(dir, config.StateDirName))
	err = store.Save(checkpoint.Checkpoint{
		RunID:             "0123456789abcdef",
		TargetDir:         dir,
		PlannedPasses:     3,
		NextPass:          2,
		MaxFiles:          40000,
		Backlog:           backlog.Backlog{MonolithCount: 2, Score: 12.5},
		ExecutionSettings: &checkpoint.ExecutionSettings{Provider: "codex", Orchestrate: true, MaxWorkers: 4},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "status", "-C", dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"01234567", "2 of 3", "monolith=2", "40,000", "orchestrated, 4 workers"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "not resumable") {
		t.Errorf("valid checkpoint reported as not resumable:\n%s", out)
	}
}

func TestResetCmd(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(dir, config.StateDirName))
	if err := store.Save(checkpoint.Checkpoint{TargetDir: dir, PlannedPasses: 1, NextPass: 1}); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "reset", "-C", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Checkpoint removed") || store.Exists() {
		t.Errorf("reset output %q, exists=%v", out, store.Exists())
	}

	out, _ = execute(t, "reset", "-C", dir)
	if !strings.Contains(out, "No checkpoint") {
		t.Errorf("second reset output %q", out)
	}
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "history", "-C", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No run history") {
		t.Errorf("output = %q", out)
	}

	w, err := eventlog.Open(filepath.Join(dir, config.StateDirName, eventlog.FileName))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, e := range []eventlog.Event{
		{RunID: "run-a", Type: eventlog.TypePass, TargetDir: dir, Pass: 1, PlannedPasses: 2, Status: "CONTINUE", Backlog: "monolith=1 (score 9.00)"},
		{RunID: "run-b", Type: eventlog.TypePass, TargetDir: "/other", Pass: 1, PlannedPasses: 1, Status: "COMPLETE", Backlog: "empty backlog"},
	} {
		if err := w.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "history", "-C", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "run-a") || !strings.Contains(out, "1/2") {
		t.Errorf("history missing run-a:\n%s", out)
	}
	if strings.Contains(out, "run-b") {
		t.Errorf("history shows another target's run:\n%s", out)
	}

	out, _ = execute(t, "history", "-C", dir, "--all")
	if !strings.Contains(out, "run-b") {
		t.Errorf("--all history missing run-b:\n%s", out)
	}
}

func TestRunCmd_DryRunWithoutAgent(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package main\n\nfunc main() {}\n")

	out, err := execute(t, "run", "-C", dir, "--dry-run", "--no-calibrate", "--no-verify")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Dry run") || !strings.Contains(out, "Planned passes:") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, config.StateDirName, checkpoint.FileName)); !os.IsNotExist(err) {
		t.Error("dry run wrote a checkpoint")
	}
}

func saveResumable(t *testing.T, p *Paths, provider string) {
	t.Helper()
	err := checkpoint.NewStore(p.StateDir).Save(checkpoint.Checkpoint{
		TargetDir:         p.TargetDir,
		PlannedPasses:     3,
		NextPass:          2,
		ExecutionSettings: &checkpoint.ExecutionSettings{Provider: provider, MaxWorkers: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestResumeProvider(t *testing.T) {
	p, err := ResolvePaths(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	opts := controller.Options{Provider: "claude", Resume: true}

	if got := resumeProvider(p, opts); got != "claude" {
		t.Errorf("without checkpoint = %q, want claude", got)
	}

	saveResumable(t, p, "codex")
	if got := resumeProvider(p, opts); got != "codex" {
		t.Errorf("resumed = %q, want saved codex", got)
	}

	opts.Resume = false
	if got := resumeProvider(p, opts); got != "claude" {
		t.Errorf("fresh = %q, want claude", got)
	}
}

func TestRunCmd_PreflightChecksSavedProvider(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH", t.TempDir())
	p, err := ResolvePaths(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	saveResumable(t, p, "codex")

	_, err = execute(t, "run", "-C", dir, "-p", "claude", "--no-verify")

	if !errors.Is(err, aiexec.ErrProviderNotFound) {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}
	if !strings.Contains(err.Error(), "not found: codex") {
		t.Errorf("err = %v, want the saved provider codex checked", err)
	}
}

func TestRunCmd_InvalidFlags(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"--passes", "99"},
		{"--max-workers", "0"},
		{"--provider", "gemini"},
	} {
		_, err := execute(t, append([]string{"run", "-C", dir, "--dry-run"}, args...)...)
		if !errors.Is(err, config.ErrInvalidPasses) && !errors.Is(err, config.ErrInvalidMaxWorkers) && !errors.Is(err, config.ErrInvalidProvider) {
			t.Errorf("run %v: err = %v, want a validation error", args, err)
		}
	}
}

func TestVerifyCommands(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "go.mod", "module example.com/x\n\ngo 1.22\n")

	cfg := config.Default()
	if got := verifyCommands(dir, cfg); len(got) == 0 {
		t.Error("no commands detected for a Go module")
	}

	cfg.Verify.Commands = []string{"make check"}
	if got := verifyCommands(dir, cfg); len(got) != 1 || got[0] != "make check" {
		t.Errorf("configured commands = %v", got)
	}

	cfg.Verify.Enabled = false
	if got := verifyCommands(dir, cfg); got != nil {
		t.Errorf("disabled verify = %v, want nil", got)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "refloop ") {
		t.Errorf("version output = %q", out)
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := &consoleSink{p: newProgress(&buf, false)}
	ctx := context.Background()

	_ = s.Record(ctx, eventlog.Event{Type: eventlog.TypeRunStart, RunID: "abcdef0123456789", Status: "fresh"})
	_ = s.Record(ctx, eventlog.Event{Type: eventlog.TypePass, Pass: 2, PlannedPasses: 3, Status: "CONTINUE", Backlog: "monolith=1 (score 9.00)"})
	_ = s.Record(ctx, eventlog.Event{Type: eventlog.TypeVerify, Pass: 2, Status: "failed"})

	want := "✓ run abcdef01 (fresh)\n✓ pass 2/3 continue: monolith=1 (score 9.00)\n! verification failed after pass 2\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestProgress_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	p := newProgress(&buf, false)

	p.Start("refactoring /repo")
	p.Step("pass 1/2 complete")
	p.Stop()
	p.Stop()

	if got, want := buf.String(), "refactoring /repo\n✓ pass 1/2 complete\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWatchCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", checkpoint.FileName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchCheckpoint(ctx, path, func() { calls.Add(1) })
	}()

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		_ = os.MkdirAll(filepath.Dir(path), 0o750)
		_ = os.WriteFile(path, []byte(`{"version":1}`), 0o600)
		time.Sleep(3 * watchDebounce)
	}
	if calls.Load() == 0 {
		t.Fatal("onChange never called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchCheckpoint = %v", err)
	}
}

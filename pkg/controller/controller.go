// Package controller drives a refactor run: scan, calibrate, then repeated
// passes of agent work, rescan and decision until the backlog clears, the
// budget runs out or progress stalls. Run state survives interruption
// through the checkpoint store.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"refloop/pkg/aiexec"
	"refloop/pkg/backlog"
	"refloop/pkg/calibrate"
	"refloop/pkg/checkpoint"
	"refloop/pkg/eventlog"
	"refloop/pkg/langprofile"
	"refloop/pkg/prompt"
	"refloop/pkg/scan"
	"refloop/pkg/schedule"
	"refloop/pkg/verify"
)

// Loop limits.
const (
	// HardPassCap bounds a budget that grows on its own.
	HardPassCap = 24
	// StagnationLimit is the number of consecutive unchanged passes that
	// stops a run.
	StagnationLimit = 2
	maxGrowth       = 3
)

// ScanCapLadder is the sequence of file caps tried when a scan is truncated
// and the caller did not pin a cap.
var ScanCapLadder = []int{20000, 40000, 80000, 120000}

// Scanner measures the source files of a directory.
type Scanner interface {
	Scan(ctx context.Context, root string, maxFiles int) (*scan.Result, error)
}

// Verifier runs verification commands after a pass.
type Verifier interface {
	Run(ctx context.Context, dir string, commands []string) verify.Report
}

// EventSink receives run events. Errors are logged, never fatal.
type EventSink interface {
	Record(ctx context.Context, e eventlog.Event) error
}

// Deps are the collaborators of a Controller. Store, Verifier and Sink are
// optional.
type Deps struct {
	Exec     aiexec.Executor
	Scanner  Scanner
	Verifier Verifier
	Store    *checkpoint.Store
	Sink     EventSink
	// Detect reports stack and shape; defaults to langprofile.Detect.
	Detect func(root string) langprofile.Detection
	Logger *slog.Logger
}

// Options are the caller's choices for one invocation.
type Options struct {
	TargetDir string
	// Passes fixes the pass budget. Zero derives it from the backlog.
	Passes int
	// MaxFiles pins the scan cap. Zero walks ScanCapLadder.
	MaxFiles       int
	Provider       string
	Model          string
	Orchestrate    bool
	MaxWorkers     int
	Timeout        time.Duration
	Calibrate      bool
	VerifyCommands []string
	// Resume continues from a valid checkpoint. When false any existing
	// checkpoint is deleted.
	Resume bool
	// DryRun stops after the initial scan and calibration.
	DryRun bool
}

// Summary describes how a run ended. It is returned with BacklogError too.
type Summary struct {
	RunID         string
	Resumed       bool
	StartPass     int
	Passes        int // passes completed, including those before a resume
	PlannedPasses int
	Backlog       backlog.Backlog
	Scan          backlog.RepoScan
	Warnings      []string
	DryRun        bool
}

// Controller runs refactor loops.
type Controller struct {
	exec     aiexec.Executor
	scanner  Scanner
	verifier Verifier
	store    *checkpoint.Store
	sink     EventSink
	detect   func(string) langprofile.Detection
	logger   *slog.Logger
	newID    func() string
}

// New returns a Controller.
func New(d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Detect == nil {
		d.Detect = langprofile.Detect
	}
	return &Controller{
		exec:     d.Exec,
		scanner:  d.Scanner,
		verifier: d.Verifier,
		store:    d.Store,
		sink:     d.Sink,
		detect:   d.Detect,
		logger:   d.Logger,
		newID:    uuid.NewString,
	}
}

// Run executes a refactor run. It returns a *BacklogError when the run stops
// with actionable work left and a *PassError when agent work fails.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	target, err := filepath.Abs(opts.TargetDir)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	opts.TargetDir = target

	sum := &Summary{}
	rc, err := c.start(ctx, opts, sum)
	if err != nil {
		return sum, err
	}
	sum.RunID = rc.RunID
	sum.Resumed = rc.Resumed
	sum.StartPass = rc.Pass
	c.fill(sum, rc)

	if opts.DryRun {
		sum.DryRun = true
		c.logger.Info("dry run", "planned_passes", rc.PlannedPasses, "backlog", rc.Backlog.String())
		return sum, nil
	}
	if !backlog.Actionable(rc.Scan) {
		c.logger.Info("nothing actionable", "backlog", rc.Backlog.String())
		c.finish(ctx, rc, "complete")
		return sum, nil
	}

	c.save(rc)
	return c.loop(ctx, rc, sum)
}

// start restores a checkpoint or scans and calibrates from scratch.
func (c *Controller) start(ctx context.Context, opts Options, sum *Summary) (RunContext, error) {
	settings := checkpoint.ExecutionSettings{
		Provider:       opts.Provider,
		Model:          opts.Model,
		Orchestrate:    opts.Orchestrate,
		MaxWorkers:     max(1, opts.MaxWorkers),
		TimeoutMs:      opts.Timeout.Milliseconds(),
		Calibrate:      opts.Calibrate,
		VerifyCommands: slices.Clone(opts.VerifyCommands),
	}

	if cp := c.resumable(opts); cp != nil {
		rc := fromCheckpoint(cp, settings)
		if rc.RunID == "" {
			rc.RunID = c.newID()
		}
		if opts.Passes > 0 {
			rc = rc.withBudget(opts.Passes)
			rc.BudgetFixed = true
		}
		c.logger.Info("resuming run", "run", rc.RunID, "next_pass", rc.Pass, "planned_passes", rc.PlannedPasses, "provider", rc.Settings.Provider)
		c.record(ctx, rc, rc.Completed(), eventlog.TypeRunStart, "resumed", nil)
		return rc, nil
	}

	rc := RunContext{
		RunID:          c.newID(),
		TargetDir:      opts.TargetDir,
		Settings:       settings,
		Pass:           1,
		MaxFilesPinned: opts.MaxFiles > 0,
		BudgetFixed:    opts.Passes > 0,
	}
	c.record(ctx, rc, 0, eventlog.TypeRunStart, "fresh", nil)

	rs, maxFiles, err := c.scanRepo(ctx, rc.TargetDir, opts.MaxFiles, rc.MaxFilesPinned)
	if err != nil {
		return rc, err
	}
	rc = rc.withScan(rs, maxFiles)

	if rc.Settings.Calibrate {
		out := calibrate.New(c.exec, calibrate.Options{
			Provider: rc.Settings.Provider,
			Model:    rc.Settings.Model,
			Timeout:  rc.Settings.Timeout(),
		}, c.logger).Calibrate(ctx, rc.Scan)
		before := rc.Backlog
		rc = rc.withScan(out.Scan, rc.MaxFiles)
		if out.Warning != "" {
			sum.Warnings = append(sum.Warnings, out.Warning)
		}
		c.logger.Info("calibrated", "reviewed", out.Reviewed, "dropped", out.Dropped, "backlog", rc.Backlog.String())
		c.record(ctx, rc, 0, eventlog.TypeCalibration, calibrationStatus(out), map[string]any{
			"reviewed": out.Reviewed,
			"dropped":  out.Dropped,
			"before":   before.String(),
			"warning":  out.Warning,
		})
	}

	planned := opts.Passes
	if planned <= 0 {
		planned = backlog.AdaptivePassCount(rc.Backlog)
	}
	return rc.withBudget(planned), nil
}

// resumable returns the checkpoint to resume from, or nil. A checkpoint
// that fails validation is treated as absent.
func (c *Controller) resumable(opts Options) *checkpoint.Checkpoint {
	if c.store == nil {
		return nil
	}
	if !opts.Resume {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clear checkpoint", "err", err)
		}
		return nil
	}
	cp, err := c.store.Load(opts.TargetDir)
	switch {
	case err == nil:
		return cp
	case errors.Is(err, checkpoint.ErrNotFound):
	default:
		c.logger.Warn("ignoring checkpoint", "path", c.store.Path(), "err", err)
	}
	return nil
}

func (c *Controller) loop(ctx context.Context, rc RunContext, sum *Summary) (*Summary, error) {
	for {
		if rc.Pass > rc.PlannedPasses {
			if !hasOpenWork(rc) {
				c.fill(sum, rc)
				c.finish(ctx, rc, "complete")
				return sum, nil
			}
			grown, ok := grow(rc)
			if !ok {
				c.fill(sum, rc)
				c.finish(ctx, rc, "budget exhausted")
				return sum, rc.backlogError(ErrBudgetExhausted)
			}
			c.logger.Info("growing pass budget", "from", rc.PlannedPasses, "to", grown.PlannedPasses)
			rc = grown
		}

		pass := rc.Pass
		before := rc.Backlog
		status, warnings, err := c.executePass(ctx, rc)
		sum.Warnings = append(sum.Warnings, warnings...)
		if err != nil {
			c.record(ctx, rc, pass, eventlog.TypePass, "failed", map[string]any{"error": err.Error()})
			c.fill(sum, rc)
			return sum, &PassError{Pass: pass, Err: err}
		}

		rs, maxFiles, err := c.scanRepo(ctx, rc.TargetDir, rc.MaxFiles, rc.MaxFilesPinned)
		if err != nil {
			c.fill(sum, rc)
			return sum, fmt.Errorf("rescan after pass %d: %w", pass, err)
		}
		failures := c.verifyPass(ctx, rc)

		after := backlog.Summarize(rs)
		stagnant := 0
		if backlog.Same(before, after) {
			stagnant = rc.StagnantPasses + 1
		}
		rc = rc.afterPass(rs, maxFiles, stagnant, failures)
		c.fill(sum, rc)

		c.logger.Info("pass done", "pass", pass, "planned_passes", rc.PlannedPasses, "status", string(status),
			"backlog", after.String(), "actionable_failures", len(failures), "stagnant", stagnant)
		c.record(ctx, rc, pass, eventlog.TypePass, statusName(status), map[string]any{
			"actionableFailures": len(failures),
			"stagnant":           stagnant,
			"warnings":           warnings,
		})

		if !shouldContinue(rc, status) {
			c.finish(ctx, rc, "complete")
			return sum, nil
		}
		if rc.StagnantPasses >= StagnationLimit {
			c.save(rc)
			c.finish(ctx, rc, "stalled")
			return sum, rc.backlogError(ErrStalled)
		}
		c.save(rc)
	}
}

// shouldContinue applies the continuation rule to the state after a pass.
func shouldContinue(rc RunContext, status aiexec.Status) bool {
	if hasOpenWork(rc) {
		return true
	}
	return status == aiexec.StatusContinue && rc.Backlog.Total() > 0
}

// hasOpenWork reports actionable backlog or actionable verification
// failures. A run whose budget ran out without open work is complete.
func hasOpenWork(rc RunContext) bool {
	return backlog.Actionable(rc.Scan) || len(rc.VerifyFailures) > 0
}

// grow extends an exhausted budget when there is open work left and the
// caller did not fix the budget.
func grow(rc RunContext) (RunContext, bool) {
	if rc.BudgetFixed || rc.PlannedPasses >= HardPassCap {
		return rc, false
	}
	open := backlog.ActionableCount(rc.Scan) + len(rc.VerifyFailures)
	if open == 0 {
		return rc, false
	}
	step := min(maxGrowth, int(math.Ceil(float64(open)/2)))
	return rc.withBudget(min(HardPassCap, rc.PlannedPasses+step)), true
}

// executePass runs the agent work of one pass: decomposed when orchestration
// is on and the scheduler produces a result, otherwise one write-enabled call.
func (c *Controller) executePass(ctx context.Context, rc RunContext) (aiexec.Status, []string, error) {
	brief := prompt.Pass(prompt.PassParams{
		TargetDir:            rc.TargetDir,
		Pass:                 rc.Pass,
		PlannedPasses:        rc.PlannedPasses,
		Scan:                 rc.Scan,
		Backlog:              rc.Backlog,
		VerificationFailures: rc.VerifyFailures,
	})
	s := rc.Settings

	c.logger.Info("pass start", "pass", rc.Pass, "planned_passes", rc.PlannedPasses, "orchestrate", s.Orchestrate)
	if s.Orchestrate {
		rep, err := schedule.New(c.exec, c.logger).RunPass(ctx, schedule.PassRequest{
			Brief:      brief,
			Dir:        rc.TargetDir,
			Provider:   s.Provider,
			Model:      s.Model,
			MaxWorkers: s.MaxWorkers,
			Timeout:    s.Timeout(),
		})
		switch {
		case err == nil:
			c.logger.Info("orchestrated pass", "summary", rep.Summary, "waves", rep.WaveCount, "tasks", rep.TaskCount, "greedy", rep.Greedy)
			return rep.Status, rep.Warnings, nil
		case errors.Is(err, schedule.ErrNoResult):
			c.logger.Warn("orchestration unavailable; running single call", "err", err)
		default:
			return aiexec.StatusUnknown, nil, err
		}
	}

	res := c.exec.Execute(ctx, aiexec.Request{
		Prompt:               brief,
		Provider:             s.Provider,
		Model:                s.Model,
		Dir:                  rc.TargetDir,
		Timeout:              s.Timeout(),
		Sandbox:              aiexec.WorkspaceWrite,
		MaxConcurrentWorkers: s.MaxWorkers,
	})
	var warnings []string
	if res.Warning != "" {
		warnings = append(warnings, res.Warning)
	}
	if !res.OK {
		if res.Err == nil {
			res.Err = errors.New("agent call failed")
		}
		return aiexec.StatusUnknown, warnings, res.Err
	}
	return aiexec.ParseStatus(res.Output), warnings, nil
}

// scanRepo scans dir and classifies the result. When the cap is not pinned
// and the scan was truncated, it retries with the next ladder step.
func (c *Controller) scanRepo(ctx context.Context, dir string, maxFiles int, pinned bool) (backlog.RepoScan, int, error) {
	if maxFiles <= 0 {
		maxFiles = ScanCapLadder[0]
	}
	var res *scan.Result
	for {
		var err error
		res, err = c.scanner.Scan(ctx, dir, maxFiles)
		if err != nil {
			return backlog.RepoScan{}, maxFiles, fmt.Errorf("scan %s: %w", dir, err)
		}
		if !res.ReachedFileCap || pinned {
			break
		}
		next, ok := nextCap(maxFiles)
		if !ok {
			c.logger.Warn("scan truncated at largest cap", "max_files", maxFiles)
			break
		}
		c.logger.Info("scan truncated; raising cap", "from", maxFiles, "to", next)
		maxFiles = next
	}

	det := c.detect(dir)
	rs := backlog.FromScan(res, backlog.Meta{TechStack: det.Stack, ProjectShape: det.Shape})
	rs.TargetDir = dir
	return rs, maxFiles, nil
}

func nextCap(current int) (int, bool) {
	for _, n := range ScanCapLadder {
		if n > current {
			return n, true
		}
	}
	return current, false
}

// verifyPass runs the configured commands and returns the actionable
// failures as prompt text.
func (c *Controller) verifyPass(ctx context.Context, rc RunContext) []string {
	cmds := rc.Settings.VerifyCommands
	if c.verifier == nil || len(cmds) == 0 {
		return nil
	}
	rep := c.verifier.Run(ctx, rc.TargetDir, cmds)
	var out []string
	for _, f := range rep.Actionable() {
		out = append(out, f.String())
	}
	status := "passed"
	if !rep.OK() {
		status = "failed"
	}
	c.record(ctx, rc, rc.Pass, eventlog.TypeVerify, status, map[string]any{
		"passed":     rep.Passed,
		"failures":   len(rep.Failures),
		"actionable": len(out),
	})
	return out
}

func (c *Controller) save(rc RunContext) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(rc.checkpoint()); err != nil {
		c.logger.Warn("save checkpoint", "err", err)
	}
}

// finish records the end of a run. Only a complete run deletes its
// checkpoint.
func (c *Controller) finish(ctx context.Context, rc RunContext, status string) {
	if status == "complete" && c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clear checkpoint", "err", err)
		}
	}
	c.logger.Info("run end", "status", status, "passes", rc.Completed(), "backlog", rc.Backlog.String())
	c.record(ctx, rc, rc.Completed(), eventlog.TypeRunEnd, status, map[string]any{"passes": rc.Completed()})
}

func (c *Controller) record(ctx context.Context, rc RunContext, pass int, typ, status string, detail map[string]any) {
	if c.sink == nil {
		return
	}
	e := eventlog.Event{
		RunID:         rc.RunID,
		Type:          typ,
		TargetDir:     rc.TargetDir,
		Pass:          pass,
		PlannedPasses: rc.PlannedPasses,
		Status:        status,
		Backlog:       rc.Backlog.String(),
		Score:         rc.Backlog.Score,
	}
	if len(detail) > 0 {
		if data, err := json.Marshal(detail); err == nil {
			e.Payload = string(data)
		}
	}
	if err := c.sink.Record(ctx, e); err != nil {
		c.logger.Warn("record event", "type", typ, "err", err)
	}
}

func (c *Controller) fill(sum *Summary, rc RunContext) {
	sum.Passes = rc.Completed()
	sum.PlannedPasses = rc.PlannedPasses
	sum.Backlog = rc.Backlog
	sum.Scan = rc.Scan
}

func statusName(s aiexec.Status) string {
	if s == aiexec.StatusUnknown {
		return "unknown"
	}
	return string(s)
}

func calibrationStatus(out calibrate.Outcome) string {
	if out.Warning != "" {
		return "unfiltered"
	}
	return "filtered"
}

// Package schedule runs one refactor pass as planner, orchestrator and
// worker waves. Waves run one after another; the workers of a wave run
// concurrently and never share a file.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"refloop/pkg/aiexec"
	"refloop/pkg/payload"
	"refloop/pkg/prompt"
)

// ErrNoResult means the decomposed path produced nothing usable and the
// caller should run the pass as a single call instead.
var ErrNoResult = errors.New("orchestrated pass produced no result")

// WorkerError reports the worker that failed a wave.
type WorkerError struct {
	TaskID string
	Wave   int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s in wave %d failed: %v", e.TaskID, e.Wave, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// PassRequest describes one decomposed pass.
type PassRequest struct {
	Brief      string // the single-call pass prompt, given to the planner
	Dir        string
	Provider   string
	Model      string
	MaxWorkers int
	Timeout    time.Duration
}

// PassReport is the outcome of a decomposed pass.
type PassReport struct {
	Status     aiexec.Status
	Summary    string
	WaveCount  int
	TaskCount  int
	Greedy     bool // waves came from GreedyWaves instead of the orchestrator
	Warnings   []string
	ProviderID string
}

type plan struct {
	RefactorNeeded bool          `json:"refactorNeeded"`
	Summary        string        `json:"summary"`
	Tasks          []PlannerTask `json:"tasks"`
}

type orchestration struct {
	Summary     string           `json:"summary"`
	Assignments []WaveAssignment `json:"assignments"`
}

// Scheduler runs decomposed passes through an Executor.
type Scheduler struct {
	exec   aiexec.Executor
	logger *slog.Logger
	newID  func() string
}

// New returns a Scheduler.
func New(exec aiexec.Executor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{exec: exec, logger: logger, newID: func() string { return uuid.NewString()[:8] }}
}

// RunPass plans, orchestrates and executes one pass. It returns ErrNoResult
// when planning fails or the provider cannot orchestrate, and a
// *WorkerError when a wave fails.
func (s *Scheduler) RunPass(ctx context.Context, req PassRequest) (*PassReport, error) {
	maxWorkers := max(1, req.MaxWorkers)
	report := &PassReport{Status: aiexec.StatusComplete}

	planRes := s.call(ctx, req, prompt.Planner(req.Brief, maxWorkers), aiexec.ReadOnly)
	report.ProviderID = planRes.ProviderUsed
	if !planRes.OK {
		return nil, fmt.Errorf("%w: planner call failed: %w", ErrNoResult, planRes.Err)
	}
	if !aiexec.OrchestrationCapable(planRes.ProviderUsed) {
		return nil, fmt.Errorf("%w: provider %s cannot orchestrate", ErrNoResult, planRes.ProviderUsed)
	}
	report.addWarning(planRes.Warning)

	var p plan
	if err := payload.Decode(planRes.Output, payload.Planner, &p); err != nil {
		return nil, fmt.Errorf("%w: planner: %w", ErrNoResult, err)
	}
	tasks := cleanTasks(p.Tasks, s.newID)
	if !p.RefactorNeeded || len(tasks) == 0 {
		report.Summary = p.Summary
		if report.Summary == "" {
			report.Summary = "planner found no refactor work"
		}
		s.logger.Info("planner found nothing to do")
		return report, nil
	}

	assignments, greedy := s.orchestrate(ctx, req, tasks, maxWorkers, report)
	report.Greedy = greedy
	waves := groupWaves(assignments)
	report.WaveCount = len(waves)
	report.TaskCount = len(assignments)
	s.logger.Info("pass scheduled", "tasks", len(tasks), "waves", len(waves), "greedy", greedy)

	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}
	for i, wave := range waves {
		if err := s.runWave(ctx, req, wave, i+1, len(waves), titles, report); err != nil {
			return report, err
		}
	}

	summary := p.Summary
	if summary == "" {
		summary = "orchestrated pass"
	}
	report.Summary = fmt.Sprintf("%s (%d tasks in %d waves)", summary, report.TaskCount, report.WaveCount)
	return report, nil
}

// orchestrate asks for a wave assignment and falls back to GreedyWaves when
// the call fails or its output does not cover the tasks safely.
func (s *Scheduler) orchestrate(ctx context.Context, req PassRequest, tasks []PlannerTask, maxWorkers int, report *PassReport) ([]WaveAssignment, bool) {
	views := make([]prompt.Task, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, prompt.Task{ID: t.ID, Title: t.Title, Files: t.Files, Instructions: t.Instructions})
	}

	res := s.call(ctx, req, prompt.Orchestrator(views, maxWorkers), aiexec.ReadOnly)
	var reason error
	if res.OK {
		report.addWarning(res.Warning)
		var o orchestration
		if reason = payload.Decode(res.Output, payload.Orchestrator, &o); reason == nil {
			as, err := normalizeAssignments(tasks, o.Assignments, maxWorkers)
			if err == nil {
				return as, false
			}
			reason = err
		}
	} else {
		reason = res.Err
	}

	s.logger.Warn("orchestrator output unusable; using greedy waves", "reason", reason)
	report.addWarning(fmt.Sprintf("orchestrator fallback: %v", reason))
	return GreedyWaves(tasks, maxWorkers), true
}

// runWave executes one wave. Every worker is awaited; the first failure is
// returned.
func (s *Scheduler) runWave(ctx context.Context, req PassRequest, wave []WaveAssignment, n, total int, titles map[string]string, report *PassReport) error {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(1, req.MaxWorkers))

	s.logger.Info("wave start", "wave", n, "of", total, "workers", len(wave))
	for _, a := range wave {
		g.Go(func() error {
			text := prompt.Worker(prompt.WorkerParams{
				TaskID:       a.TaskID,
				Title:        titles[a.TaskID],
				Wave:         n,
				Waves:        total,
				Files:        a.Files,
				Instructions: a.WorkerInstructions,
			})
			res := s.call(ctx, req, text, aiexec.WorkspaceWrite)
			if !res.OK {
				return &WorkerError{TaskID: a.TaskID, Wave: n, Err: res.Err}
			}
			mu.Lock()
			report.addWarning(res.Warning)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("wave failed", "wave", n, "err", err)
		return err
	}
	return nil
}

func (s *Scheduler) call(ctx context.Context, req PassRequest, text string, sandbox aiexec.Sandbox) aiexec.Result {
	res := s.exec.Execute(ctx, aiexec.Request{
		Prompt:   text,
		Provider: req.Provider,
		Model:    req.Model,
		Dir:      req.Dir,
		Timeout:  req.Timeout,
		Sandbox:  sandbox,
	})
	if !res.OK && res.Err == nil {
		res.Err = errors.New("agent call failed without an error")
	}
	return res
}

func (r *PassReport) addWarning(w string) {
	if w != "" {
		r.Warnings = append(r.Warnings, w)
	}
}

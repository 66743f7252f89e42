package controller

import (
	"slices"

	"refloop/pkg/backlog"
	"refloop/pkg/checkpoint"
)

// RunContext is the state of a run between two passes. It is passed by
// value and replaced, never edited: every step returns a new RunContext.
type RunContext struct {
	RunID          string
	TargetDir      string
	Settings       checkpoint.ExecutionSettings
	PlannedPasses  int
	Pass           int // the next pass to run, 1-based
	MaxFiles       int
	MaxFilesPinned bool
	BudgetFixed    bool
	StagnantPasses int
	Scan           backlog.RepoScan
	Backlog        backlog.Backlog
	// VerifyFailures are the actionable failures of the last pass, fed into
	// the next prompt.
	VerifyFailures []string
	Resumed        bool
}

// Completed is the number of passes finished so far.
func (rc RunContext) Completed() int { return rc.Pass - 1 }

func (rc RunContext) withScan(rs backlog.RepoScan, maxFiles int) RunContext {
	rc.Scan = rs
	rc.Backlog = backlog.Summarize(rs)
	rc.MaxFiles = maxFiles
	return rc
}

func (rc RunContext) withBudget(planned int) RunContext {
	rc.PlannedPasses = planned
	return rc
}

// afterPass moves rc past the pass it just ran.
func (rc RunContext) afterPass(rs backlog.RepoScan, maxFiles, stagnant int, failures []string) RunContext {
	rc = rc.withScan(rs, maxFiles)
	rc.Pass++
	rc.StagnantPasses = stagnant
	rc.VerifyFailures = slices.Clone(failures)
	return rc
}

func (rc RunContext) checkpoint() checkpoint.Checkpoint {
	settings := rc.Settings
	settings.VerifyCommands = slices.Clone(settings.VerifyCommands)
	return checkpoint.Checkpoint{
		RunID:             rc.RunID,
		TargetDir:         rc.TargetDir,
		PlannedPasses:     rc.PlannedPasses,
		NextPass:          rc.Pass,
		MaxFiles:          rc.MaxFiles,
		MaxFilesPinned:    rc.MaxFilesPinned,
		BudgetFixed:       rc.BudgetFixed,
		StagnantPasses:    rc.StagnantPasses,
		Scan:              rc.Scan,
		Backlog:           rc.Backlog,
		ExecutionSettings: &settings,
	}
}

// fromCheckpoint restores a run. Saved execution settings replace the new
// invocation's; fallback is used only when the checkpoint has none.
func fromCheckpoint(cp *checkpoint.Checkpoint, fallback checkpoint.ExecutionSettings) RunContext {
	settings := fallback
	if cp.ExecutionSettings != nil {
		settings = *cp.ExecutionSettings
	}
	return RunContext{
		RunID:          cp.RunID,
		TargetDir:      cp.TargetDir,
		Settings:       settings,
		PlannedPasses:  cp.PlannedPasses,
		Pass:           cp.NextPass,
		MaxFiles:       cp.MaxFiles,
		MaxFilesPinned: cp.MaxFilesPinned,
		BudgetFixed:    cp.BudgetFixed,
		StagnantPasses: cp.StagnantPasses,
		Scan:           cp.Scan,
		Backlog:        cp.Backlog,
		Resumed:        true,
	}
}

func (rc RunContext) backlogError(kind error) *BacklogError {
	return &BacklogError{
		Kind:           kind,
		Passes:         rc.Completed(),
		Backlog:        rc.Backlog,
		VerifyFailures: len(rc.VerifyFailures),
	}
}

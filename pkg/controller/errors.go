package controller

import (
	"errors"
	"fmt"

	"refloop/pkg/backlog"
)

// Terminal failure kinds, matched with errors.Is on a *BacklogError.
var (
	ErrStalled         = errors.New("backlog unchanged")
	ErrBudgetExhausted = errors.New("pass budget exhausted")
)

// BacklogError ends a run that stopped with refactor work left.
type BacklogError struct {
	Kind    error // ErrStalled or ErrBudgetExhausted
	Passes  int   // passes completed when the run stopped
	Backlog backlog.Backlog
	// VerifyFailures counts the actionable verification failures of the
	// last pass.
	VerifyFailures int
}

func (e *BacklogError) Error() string {
	msg := fmt.Sprintf("%v after %d passes; remaining backlog: %s", e.Kind, e.Passes, e.Backlog)
	if e.VerifyFailures > 0 {
		msg += fmt.Sprintf("; %d verification failure(s) left", e.VerifyFailures)
	}
	return msg
}

func (e *BacklogError) Unwrap() error { return e.Kind }

// PassError reports a pass whose agent work failed.
type PassError struct {
	Pass int
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("pass %d failed: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

package aiexec

import (
	"errors"
	"fmt"
	"time"
)

// ErrProviderNotFound means the requested agent CLI is not on PATH.
var ErrProviderNotFound = errors.New("agent CLI not found")

// TimeoutError is returned when a call exceeded its timeout without
// printing a terminal status marker.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call exceeded %v timeout without a terminal status", e.Provider, e.Timeout)
}

// ExitError is returned when the agent process exits unsuccessfully.
type ExitError struct {
	Provider string
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s exited: %v: %s", e.Provider, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

package harpoonerr

import (
	"errors"
)

// Failure is the structured payload handed to presentation layers instead of
// a raw error.
type Failure struct {
	Kind     Kind   `json:"kind"`
	Op       string `json:"op,omitempty"`
	Message  string `json:"message"`
	ExitCode int    `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	// Environment is set for deployment problems (missing binaries) as
	// opposed to scan-specific failures.
	Environment bool `json:"environment"`
}

// ToFailure converts any error into a Failure. Errors that carry no kind are
// reported as process errors.
func ToFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		return &Failure{Kind: ProcessError, Message: err.Error()}
	}

	f := &Failure{
		Kind:    e.Kind,
		Op:      e.Op,
		Message: err.Error(),
		Stderr:  e.Stderr,
	}

	switch e.Kind {
	case ToolNotFound:
		f.Environment = true
	case ProcessError:
		f.ExitCode = e.Code
	}
	return f
}

package harpoonerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render a useful message without
// parsing error strings.
type Kind string

const (
	ToolNotFound             Kind = "tool_not_found"
	ProcessTimeout           Kind = "process_timeout"
	ProcessError             Kind = "process_error"
	ParseError               Kind = "parse_error"
	RemoteServiceUnreachable Kind = "remote_unreachable"
	RemoteServiceError       Kind = "remote_error"
	AccessDenied             Kind = "access_denied"
	NotFound                 Kind = "not_found"
	Unresolved               Kind = "unresolved"
	ValidationError          Kind = "validation_error"
	InvalidState             Kind = "invalid_state"
)

// Error captures contextual information for orchestration failures.
type Error struct {
	Op   string
	Kind Kind
	Msg  string
	// Code is the exit code for ProcessError, the HTTP status for
	// RemoteServiceError, zero otherwise.
	Code   int
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an Error with the provided context.
func E(op string, kind Kind, msg string, err error) error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: err}
}

// Process constructs a ProcessError carrying the exit code and stderr of the
// failed child.
func Process(op string, code int, stderr string, err error) error {
	return &Error{
		Op:     op,
		Kind:   ProcessError,
		Msg:    fmt.Sprintf("exited with code %d", code),
		Code:   code,
		Stderr: stderr,
		Err:    err,
	}
}

// KindOf returns the kind of the first *Error in the chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

package validate

import (
	"errors"
	"fmt"
)

// FatalError is returned by Engine.Validate when a condition ends the run.
// The same condition is also recorded in the Diagnostics collector.
type FatalError struct {
	// Code identifies the error category.
	Code Code

	// TurnID is the turn being validated, empty for run-level conditions.
	TurnID string

	// Field names the offending field when there is one.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TurnID != "" {
		msg += fmt.Sprintf(" (turn=%s)", e.TurnID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// FatalCode returns the code of a *FatalError in err's chain, or "".
func FatalCode(err error) Code {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

package osb

import (
	"errors"
	"fmt"
)

// TransientError is a failure that says nothing about the operation itself:
// the broker could not be reached, timed out, or answered with a server
// error. Pollers treat it as "try again next interval".
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("broker %s failed transiently: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectedError is an explicit broker rejection of a request. It is
// propagated to the caller synchronously and never retried.
type RejectedError struct {
	Op          string
	StatusCode  int
	Description string
}

func (e *RejectedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("broker rejected %s (status %d): %s", e.Op, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("broker rejected %s (status %d)", e.Op, e.StatusCode)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

package executor

import (
	"errors"
	"fmt"
)

// RejectionError is returned by an action that declines to run, for example
// because a required slot is missing. It maps to HTTP 400.
type RejectionError struct {
	ActionName string
	Message    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("action %s rejected execution: %s", e.ActionName, e.Message)
}

// NotFoundError means no action is registered under the requested name.
// It maps to HTTP 404.
type NotFoundError struct {
	ActionName string
	Message    string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// Reject builds a RejectionError. Actions may leave name or message empty;
// the executor fills in the running action's name and a default message.
func Reject(name, message string) error {
	return &RejectionError{ActionName: name, Message: message}
}

// IsRejection reports whether err wraps a RejectionError.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

func notFound(name string) error {
	return &NotFoundError{
		ActionName: name,
		Message:    fmt.Sprintf("No registered action found for name '%s'.", name),
	}
}

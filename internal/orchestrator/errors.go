package orchestrator

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindMissingInput  Kind = "missing-input"
	KindNotFound      Kind = "not-found"
	KindRequestFailed Kind = "request-failed"
	KindSocketError   Kind = "socket-error"
)

// Error is every failure the orchestrator reports. Kind picks the
// user-facing message; Err keeps the cause for logs and errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the text shown to the player.
func (e *Error) Message() string {
	switch e.Kind {
	case KindMissingInput:
		if e.Err != nil {
			return "Please check your input: " + e.Err.Error()
		}
		return "Please fill in the required fields."
	case KindNotFound:
		return "No user found with that email."
	case KindRequestFailed:
		return "The request could not be completed. Please try again."
	case KindSocketError:
		return "Could not connect to the duel. You can retry joining it."
	}
	return "Something went wrong."
}

// Retryable reports whether the same call may succeed if made again. Socket
// failures are retried through RetryOpen instead.
func (e *Error) Retryable() bool { return e.Kind == KindRequestFailed }

// KindOf returns the orchestrator kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

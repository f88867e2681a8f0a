package pipeline

import (
	"fmt"
	"strings"
)

// BackendErrorKind distinguishes the classification backend failure modes.
type BackendErrorKind string

const (
	BackendQuotaExceeded    BackendErrorKind = "quota_exceeded"
	BackendModelUnavailable BackendErrorKind = "model_unavailable"
	BackendTransport        BackendErrorKind = "transport"
)

// BackendError is a classification backend failure. It aborts the whole
// invocation: already-completed user groups stand, later groups are not
// attempted.
type BackendError struct {
	Kind BackendErrorKind
	Hint string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("classification backend: %s: %v", e.Hint, e.Err)
	}
	return fmt.Sprintf("classification backend: %v", e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// wrapBackendError maps a raw backend failure onto the taxonomy, attaching a
// user-facing hint for the known cases.
func wrapBackendError(err error) *BackendError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return &BackendError{
			Kind: BackendQuotaExceeded,
			Hint: "AI quota exceeded. You are on a free tier with strict limits. Please wait a minute and try again",
			Err:  err,
		}
	case strings.Contains(msg, "404") || strings.Contains(msg, "NOT_FOUND"):
		return &BackendError{
			Kind: BackendModelUnavailable,
			Hint: "AI model not found. Check your API key and Google AI Studio project settings",
			Err:  err,
		}
	default:
		return &BackendError{
			Kind: BackendTransport,
			Err:  err,
		}
	}
}

// ResponseParseError is a response-shape failure for a single user's slice.
// It is recoverable: the reconciliation loop marks that slice as errored and
// moves on to the next user.
type ResponseParseError struct {
	UserID string
	Raw    string
	Err    error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("parsing classifier response for user %s: %v", e.UserID, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// PersistenceError is a raw or canonical store write/read failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

package imaging

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is returned when the service rejects the credentials.
	// The credential store has already been invalidated when it is returned.
	ErrSessionExpired = errors.New("session expired")

	// ErrTimeout is returned when a request exceeded its time budget
	ErrTimeout = errors.New("imaging service timed out")

	// ErrUnavailable is returned when the service could not be reached
	ErrUnavailable = errors.New("imaging service unavailable")

	// ErrMalformedResponse is returned when a payload cannot be decoded or
	// does not match its declared shape
	ErrMalformedResponse = errors.New("malformed response")
)

// BackendError is a failure reported by the service itself
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("imaging service error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("imaging service error (HTTP %d): %s", e.Status, e.Message)
}

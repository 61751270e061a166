package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error is a failed completion.
type Error struct {
	// Provider is the name of the backend that failed.
	Provider string

	// Message is a human-readable description.
	Message string

	// Transient marks failures worth retrying (timeouts, rate limits,
	// unavailable upstreams).
	Transient bool

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider error: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusTransient reports whether an HTTP status from an API backend is
// worth retrying.
func statusTransient(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

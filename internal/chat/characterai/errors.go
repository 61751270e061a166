package characterai

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the token is rejected.
var ErrUnauthorized = errors.New("character.ai rejected the token")

// APIError is an error reported by the chat service itself. It is not
// retryable.
type APIError struct {
	Command string
	Comment string
}

func (e *APIError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("character.ai %s failed", e.Command)
	}
	return fmt.Sprintf("character.ai %s failed: %s", e.Command, e.Comment)
}

// HTTPError is a non-success response from the REST API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient covers network failures, timeouts and an unreachable service.
	// Callers keep local data and retry on the next view.
	ErrTransient = errors.New("remote: service unavailable")

	// ErrMalformedResponse is returned when the body is not the expected envelope
	ErrMalformedResponse = errors.New("remote: malformed response")
)

// APIError is a response the service rejected, either with a non-2xx status
// or with ok:false
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
}

// ServerMessage returns the message to show the operator
func (e *APIError) ServerMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// IsTransient reports whether err should be handled like a network failure.
// Malformed responses count as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformedResponse)
}

// AsAPIError returns the APIError in err's chain, if any
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

package google

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing event or message id.
var ErrNotFound = errors.New("google: not found")

// APIError wraps a non-2xx answer from a wrapper server, preserving the
// status code so callers can classify the failure.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google wrapper status %d: %s", e.Code, e.Body)
}

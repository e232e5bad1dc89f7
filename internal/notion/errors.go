package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed (status %d, %s): %s", e.Operation, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("%s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
}

// IsAuthError reports whether err means the integration cannot access the
// resource: an invalid key, or a database that was not shared with it.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// IsRateLimited reports whether the API rejected the request because of its
// rate limit.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

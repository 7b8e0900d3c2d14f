package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuthExpired signals that the session tokens are no longer usable and the
// caller must perform a silent logout. It is never surfaced as a user dialog.
var ErrAuthExpired = errors.New("backend: authentication expired")

// authFailedCode is the distinguished error code the backend attaches to
// authentication failures.
const authFailedCode = "AUTH_FAILED"

// APIError carries the backend's error payload for non-2xx responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("backend: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("backend: request failed with status %d", e.Status)
}

// IsAuthError reports whether the error represents the backend's
// authentication-failed shape or a locally detected token expiry.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthExpired) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.EqualFold(apiErr.Code, authFailedCode)
	}
	return false
}

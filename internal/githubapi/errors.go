package githubapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized marks responses rejected by GitHub for missing or expired
// credentials. Handlers map it to HTTP 401.
var ErrUnauthorized = errors.New("github: unauthorized")

// ErrUpstream marks any other non-2xx response or transport failure from
// GitHub. Handlers map it to HTTP 500.
var ErrUpstream = errors.New("github: upstream failure")

// ErrNotFound marks 404 responses for resources that do not exist or are
// hidden from the token.
var ErrNotFound = errors.New("github: not found")

func statusError(statusCode int, operation string) error {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %w", operation, statusCode, ErrUnauthorized)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%s returned status %d: %w", operation, statusCode, ErrNotFound)
	default:
		return fmt.Errorf("%s returned status %d: %w", operation, statusCode, ErrUpstream)
	}
}

package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no credential is stored for the user and provider.
	ErrNotFound = errors.New("credentials not found")
	// ErrNotConfigured means no OAuth client id/secret is configured.
	ErrNotConfigured = errors.New("oauth client not configured")
	// ErrReauthRequired matches any *ReauthRequiredError.
	ErrReauthRequired = errors.New("reauthentication required")
)

// ReauthRequiredError is returned when the provider rejects a refresh. The
// provider's response body is kept in Cause but never put in the message.
type ReauthRequiredError struct {
	UserID   int64
	Provider string
	Cause    error
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("%s access for user %d was revoked or expired; reconnect the account", e.Provider, e.UserID)
}

func (e *ReauthRequiredError) Is(target error) bool {
	return target == ErrReauthRequired
}

func (e *ReauthRequiredError) Unwrap() error {
	return e.Cause
}

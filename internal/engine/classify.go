package engine

import (
	"errors"
	"net/http"

	"dayplan/internal/credentials"
	"dayplan/internal/database"
	"dayplan/internal/google"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrorClass decides what happens to a failed export.
type ErrorClass string

const (
	// ClassAuth needs the user to reconnect; never queued.
	ClassAuth ErrorClass = "auth"
	// ClassNonRetryable is logged and dropped.
	ClassNonRetryable ErrorClass = "non_retryable"
	// ClassRetryable is retried in-process, then queued.
	ClassRetryable ErrorClass = "retryable"
)

// ErrNoTimeSlot is returned when a calendar-backed task has lost its due time.
var ErrNoTimeSlot = errors.New("calendar-backed task has no due time")

// Classify maps an export error to its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, credentials.ErrReauthRequired),
		errors.Is(err, credentials.ErrNotFound),
		errors.Is(err, credentials.ErrNotConfigured):
		return ClassAuth
	case errors.Is(err, google.ErrMissingID),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, ErrNoTimeSlot),
		errors.Is(err, errBadPayload):
		return ClassNonRetryable
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code)
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return classifyStatus(rErr.Response.StatusCode)
	}

	// Network failures, timeouts and anything unrecognised.
	return ClassRetryable
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return ClassRetryable
	case code >= http.StatusBadRequest:
		return ClassNonRetryable
	default:
		return ClassRetryable
	}
}

// isGone reports a remote 404/410, which a delete treats as done.
func isGone(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone
	}
	return false
}

package domain

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrFetchFailed      = errors.New("failed to fetch data")
	ErrInvalidUsername  = errors.New("username contains invalid characters")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// APIError is returned for every failed upstream request. Message is meant
// for display; StatusCode is zero when no HTTP response was received.
type APIError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers match an APIError against ErrNotFound or ErrFetchFailed.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrFetchFailed:
		return e.StatusCode != http.StatusNotFound
	}
	return false
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermanent reports whether retrying the failed request cannot help.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidUsername) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 &&
			apiErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

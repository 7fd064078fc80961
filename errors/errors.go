package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyResponse indicates that an upstream service answered with no content
	ErrEmptyResponse = errors.New("empty response")

	// ErrNotConfigured indicates that a required collaborator was not supplied
	ErrNotConfigured = errors.New("not configured")

	// ErrUnavailable indicates that an upstream port is temporarily refusing calls
	ErrUnavailable = errors.New("upstream unavailable")
)

package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is; the wrapped message names the offending value.
var (
	// ErrUnknownBackend is returned for a storage backend other than json,
	// csv, sqlite or postgres.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrInvalidDelay is returned when a pause range is negative or its
	// minimum exceeds its maximum.
	ErrInvalidDelay = errors.New("invalid delay range")

	// ErrInvalidLimit is returned when a count that must be positive is not.
	ErrInvalidLimit = errors.New("invalid limit: must be positive")

	// ErrInvalidLogLevel is returned for a log level slog does not know.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

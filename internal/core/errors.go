// Package core defines the contracts between planforge's pipeline stages and
// the external systems they call (LLM, search, scraping, storage), plus the
// error taxonomy every stage classifies its failures into.
package core

import "errors"

// Sentinel errors. Callers branch with errors.Is; implementations wrap these
// with fmt.Errorf and %w to add context.
var (
	// ErrInvalidInput means the caller's input fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNetwork covers transport-level failures talking to an external API.
	ErrNetwork = errors.New("network failure")

	// ErrRateLimit means an external API returned a quota or rate error.
	ErrRateLimit = errors.New("rate limited")

	// ErrTruncated means the model stopped at its output token budget.
	ErrTruncated = errors.New("response truncated")

	// ErrSafetyBlocked means the model refused the request on safety grounds.
	ErrSafetyBlocked = errors.New("response blocked by safety filter")

	// ErrInvalidKey means an API credential was rejected.
	ErrInvalidKey = errors.New("invalid api key")

	// ErrDataCorruption means stored data failed integrity checks.
	ErrDataCorruption = errors.New("data corruption")

	// ErrConfig means configuration is missing or malformed.
	ErrConfig = errors.New("configuration error")

	// ErrNotFound means a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Retryable reports whether a failure kind is worth retrying with backoff.
// Truncation is handled by the shrink-and-retry path, not generic retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimit)
}

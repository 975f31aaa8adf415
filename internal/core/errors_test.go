package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrapping(t *testing.T) {
	wrapped := fmt.Errorf("gemini call failed: %w", ErrRateLimit)
	assert.True(t, errors.Is(wrapped, ErrRateLimit))
	assert.False(t, errors.Is(wrapped, ErrNetwork))

	deep := fmt.Errorf("pipeline: %w", fmt.Errorf("scrape: %w", ErrNetwork))
	assert.True(t, errors.Is(deep, ErrNetwork))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("http 429: %w", ErrRateLimit)))
	assert.True(t, Retryable(fmt.Errorf("dial tcp: %w", ErrNetwork)))
	assert.False(t, Retryable(ErrTruncated))
	assert.False(t, Retryable(ErrSafetyBlocked))
	assert.False(t, Retryable(ErrInvalidInput))
	assert.False(t, Retryable(nil))
}

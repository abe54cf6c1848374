package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "transient", ClassifyError(NewTransientError(errors.New("http 503"), 503)))
	assert.Equal(t, "permanent", ClassifyError(errors.New("malformed accession number")))
}

func TestNextRetryDelay(t *testing.T) {
	base := 30 * time.Second

	assert.Equal(t, 30*time.Second, NextRetryDelay(1, base))
	assert.Equal(t, 60*time.Second, NextRetryDelay(2, base))
	assert.Equal(t, 120*time.Second, NextRetryDelay(3, base))

	// Attempt 0 is treated as the first failure.
	assert.Equal(t, 30*time.Second, NextRetryDelay(0, base))

	// Large attempt counts are capped.
	assert.Equal(t, time.Hour, NextRetryDelay(20, base))

	// Zero base falls back to the default.
	assert.Equal(t, 30*time.Second, NextRetryDelay(1, 0))
}

func TestNextRetryAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := NextRetryAt(now, 2, 30*time.Second)
	assert.Equal(t, now.Add(60*time.Second), got)
}

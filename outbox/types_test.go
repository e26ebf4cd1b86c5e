//go:build unit

package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutboxStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseOutboxStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status)

	_, err = ParseOutboxStatus("BOGUS")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestOutboxStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))

	assert.True(t, StatusProcessing.CanTransitionTo(StatusPending))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusProcessing.CanTransitionTo(StatusFailed))

	assert.False(t, StatusCompleted.CanTransitionTo(StatusPending))
	assert.False(t, StatusFailed.CanTransitionTo(StatusProcessing))
}

func TestLedgerStatus_IsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, LedgerStatusPendingSubmission.IsValid())
	assert.False(t, LedgerStatus("BOGUS").IsValid())
}

func TestOutboxEntry_Eligible(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("nil entry is not eligible", func(t *testing.T) {
		t.Parallel()

		var entry *OutboxEntry
		assert.False(t, entry.Eligible(now))
	})

	t.Run("processing entry is not eligible", func(t *testing.T) {
		t.Parallel()

		entry := &OutboxEntry{Status: StatusProcessing}
		assert.False(t, entry.Eligible(now))
	})

	t.Run("pending with nil next_retry_at is eligible", func(t *testing.T) {
		t.Parallel()

		entry := &OutboxEntry{Status: StatusPending}
		assert.True(t, entry.Eligible(now))
	})

	t.Run("pending with future next_retry_at is not eligible", func(t *testing.T) {
		t.Parallel()

		future := now.Add(time.Minute)
		entry := &OutboxEntry{Status: StatusPending, NextRetryAt: &future}
		assert.False(t, entry.Eligible(now))
	})

	t.Run("pending with past next_retry_at is eligible", func(t *testing.T) {
		t.Parallel()

		past := now.Add(-time.Minute)
		entry := &OutboxEntry{Status: StatusPending, NextRetryAt: &past}
		assert.True(t, entry.Eligible(now))
	})
}

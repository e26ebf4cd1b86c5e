package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IntentStore is the storage contract IntentWriter depends on: one
// transaction that persists both the domain row and its delivery intent.
type IntentStore interface {
	WriteIntent(ctx context.Context, entity *DomainEntity, entry *OutboxEntry) error
}

// OutboxStore is the durable queue contract the Dispatcher depends on.
//
// Implementations must provide "row-level exclusive lease with non-blocking
// skip" semantics for Claim - in Postgres, SELECT ... FOR UPDATE SKIP LOCKED.
type OutboxStore interface {
	// Claim selects up to limit entries satisfying I2, ordered by
	// (next_retry_at ASC NULLS FIRST, created_at ASC), and atomically
	// transitions them Pending -> Processing.
	Claim(ctx context.Context, limit int, now time.Time) ([]*OutboxEntry, error)

	// Complete transitions Processing -> Completed, records signature on the
	// paired DomainEntity, and clears AttemptBlockhash. Idempotent.
	Complete(ctx context.Context, entryID uuid.UUID, signature string, now time.Time) error

	// Reschedule transitions Processing -> Pending, increments RetryCount,
	// sets NextRetryAt = now + delay, and sets AttemptBlockhash to
	// pinnedBlockhash (which may be empty).
	Reschedule(ctx context.Context, entryID uuid.UUID, delay time.Duration, pinnedBlockhash string, now time.Time) error

	// Fail transitions Processing -> Failed (terminal), records reason on the
	// paired DomainEntity, and clears AttemptBlockhash.
	Fail(ctx context.Context, entryID uuid.UUID, reason string, now time.Time) error

	// ReclaimZombies transitions every Processing entry whose UpdatedAt is
	// older than ageThreshold back to Pending, preserving RetryCount and
	// AttemptBlockhash. Returns the number of entries reclaimed.
	ReclaimZombies(ctx context.Context, ageThreshold time.Duration, now time.Time) (int, error)
}

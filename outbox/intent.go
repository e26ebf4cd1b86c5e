package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outboxbridge/core/assert"
)

// IntentWriter atomically persists a DomainEntity and its delivery intent.
//
// Splitting these two writes would admit a committed entity with no
// submission intent (silent data loss at the ledger) or a committed intent
// with no entity (dangling reference); the single transaction backing
// IntentStore.WriteIntent rules out both.
type IntentWriter struct {
	store IntentStore
}

// NewIntentWriter constructs an IntentWriter backed by store.
func NewIntentWriter(store IntentStore) (*IntentWriter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	return &IntentWriter{store: store}, nil
}

// Write persists entityID's domain row and a freshly allocated OutboxEntry in
// one transaction, returning the entry's id. No retries are attempted at this
// layer: transient storage failure is surfaced to the caller.
func (w *IntentWriter) Write(ctx context.Context, entityID string, payloadFields, payload []byte) (uuid.UUID, error) {
	asserter := assert.New(ctx, nil, "outbox", "intent_writer.write")

	if err := asserter.That(ctx, w != nil && w.store != nil, "intent writer requires a store"); err != nil {
		return uuid.Nil, ErrStoreRequired
	}

	if err := asserter.NotEmpty(ctx, entityID, "entity id is required"); err != nil {
		return uuid.Nil, fmt.Errorf("intent writer: %w", ErrEntityRequired)
	}

	if err := asserter.That(ctx, len(payload) > 0, "payload is required"); err != nil {
		return uuid.Nil, fmt.Errorf("intent writer: %w", ErrPayloadRequired)
	}

	now := time.Now().UTC()

	entity := &DomainEntity{
		ID:            entityID,
		ContentHash:   ContentHash(entityID, payloadFields),
		PayloadFields: payloadFields,
		LedgerStatus:  LedgerStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	entry := &OutboxEntry{
		ID:          uuid.New(),
		AggregateID: entityID,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := w.store.WriteIntent(ctx, entity, entry); err != nil {
		return uuid.Nil, fmt.Errorf("intent writer: write intent: %w", err)
	}

	return entry.ID, nil
}

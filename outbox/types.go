package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerStatus is the business-visible submission lifecycle of a DomainEntity.
//
// It is deliberately kept distinct from OutboxStatus: OutboxStatus tracks only
// the delivery lease (who currently owns the row and whether delivery has
// terminated); LedgerStatus tracks what the entity's owner actually sees.
type LedgerStatus string

const (
	LedgerStatusPending           LedgerStatus = "PENDING"
	LedgerStatusPendingSubmission LedgerStatus = "PENDING_SUBMISSION"
	LedgerStatusSubmitted         LedgerStatus = "SUBMITTED"
	LedgerStatusConfirmed         LedgerStatus = "CONFIRMED"
	LedgerStatusFailed            LedgerStatus = "FAILED"
)

// IsValid reports whether status is one of the known LedgerStatus values.
func (status LedgerStatus) IsValid() bool {
	switch status {
	case LedgerStatusPending, LedgerStatusPendingSubmission, LedgerStatusSubmitted,
		LedgerStatusConfirmed, LedgerStatusFailed:
		return true
	default:
		return false
	}
}

func (status LedgerStatus) String() string {
	return string(status)
}

// DomainEntity is the business row whose on-chain delivery the outbox tracks.
//
// The core never inspects PayloadFields; it is opaque bytes handed to
// LedgerClient verbatim via the paired OutboxEntry.
type DomainEntity struct {
	ID                string
	ContentHash       string
	PayloadFields     []byte
	LedgerStatus      LedgerStatus
	LedgerSignature   string
	LedgerRetryCount  int
	LedgerLastError   string
	LedgerNextRetryAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OutboxStatus is the delivery lease lifecycle of an OutboxEntry.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "pending"
	StatusProcessing OutboxStatus = "processing"
	StatusCompleted  OutboxStatus = "completed"
	StatusFailed     OutboxStatus = "failed"
)

// ParseOutboxStatus validates and converts a raw string status.
func ParseOutboxStatus(raw string) (OutboxStatus, error) {
	status := OutboxStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}

	return status, nil
}

// IsValid reports whether status is a known OutboxStatus.
func (status OutboxStatus) IsValid() bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from status to next is allowed.
//
// Pending and Processing are the only non-terminal states; Completed and
// Failed are absorbing per I4.
func (status OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch status {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusPending || next == StatusCompleted || next == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

func (status OutboxStatus) String() string {
	return string(status)
}

// OutboxEntry is the central queue row of the transactional outbox.
type OutboxEntry struct {
	ID               uuid.UUID
	AggregateID      string
	Payload          []byte
	Status           OutboxStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	RetryCount       int
	NextRetryAt      *time.Time
	AttemptBlockhash string
}

// Eligible reports whether the entry satisfies I2: claimable right now.
func (entry *OutboxEntry) Eligible(now time.Time) bool {
	if entry == nil || entry.Status != StatusPending {
		return false
	}

	return entry.NextRetryAt == nil || !entry.NextRetryAt.After(now)
}

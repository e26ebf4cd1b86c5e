package outbox

import "errors"

var (
	// ErrEntryRequired is returned when an OutboxEntry argument is nil.
	ErrEntryRequired = errors.New("outbox entry is required")
	// ErrPayloadRequired is returned when a write is attempted with an empty payload.
	ErrPayloadRequired = errors.New("outbox payload is required")
	// ErrEntityRequired is returned when a DomainEntity argument is nil.
	ErrEntityRequired = errors.New("domain entity is required")
	// ErrStoreRequired is returned when a Dispatcher or IntentWriter is constructed without an OutboxStore.
	ErrStoreRequired = errors.New("outbox store is required")
	// ErrLedgerClientRequired is returned when a Dispatcher is constructed without a LedgerClient.
	ErrLedgerClientRequired = errors.New("ledger client is required")
	// ErrNotFound is returned when an OutboxEntry or DomainEntity cannot be located.
	ErrNotFound = errors.New("outbox entry not found")
	// ErrAlreadyTerminal is returned when a transition is attempted on a Completed or Failed entry.
	ErrAlreadyTerminal = errors.New("outbox entry already in a terminal state")
	// ErrInvalidStatus is returned when a raw status string does not match a known OutboxStatus.
	ErrInvalidStatus = errors.New("invalid outbox status")
	// ErrInvalidTransition is returned when a status transition violates the lifecycle.
	ErrInvalidTransition = errors.New("invalid outbox status transition")
	// ErrInvalidLedgerStatus is returned when a raw status string does not match a known LedgerStatus.
	ErrInvalidLedgerStatus = errors.New("invalid ledger status")
	// ErrBlockhashExpired is the sentinel classification for an expired pinned blockhash.
	ErrBlockhashExpired = errors.New("pinned blockhash expired")
	// ErrRetryBudgetExhausted is returned when an entry's retry_count has reached max_retries.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrSubmitTimeout is returned when a LedgerClient.Submit call exceeds its configured timeout.
	ErrSubmitTimeout = errors.New("ledger submit timed out")
	// ErrDispatcherRunning is returned when Run or Start is called on an already-running Dispatcher.
	ErrDispatcherRunning = errors.New("dispatcher is already running")
	// ErrDispatcherNotRunning is returned when Stop is called on a Dispatcher that is not running
	// (never started, or already stopped).
	ErrDispatcherNotRunning = errors.New("dispatcher is not running")
)

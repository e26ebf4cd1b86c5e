//go:build unit

package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeStore is an in-memory OutboxStore test double. It is guarded by a
// mutex and reproduces the "claim is exclusive and non-blocking" semantics
// of SELECT ... FOR UPDATE SKIP LOCKED for the parts of P2/P5 that don't
// require a real database.
type fakeStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*OutboxEntry
	entities map[string]*DomainEntity

	claimErr error
}

func newFakeStore(entries ...*OutboxEntry) *fakeStore {
	s := &fakeStore{
		entries:  make(map[uuid.UUID]*OutboxEntry),
		entities: make(map[string]*DomainEntity),
	}

	for _, e := range entries {
		cp := *e
		s.entries[e.ID] = &cp
	}

	return s
}

func (s *fakeStore) Claim(_ context.Context, limit int, now time.Time) ([]*OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}

	claimed := make([]*OutboxEntry, 0, limit)

	for _, entry := range s.entries {
		if len(claimed) >= limit {
			break
		}

		if !entry.Eligible(now) {
			continue
		}

		entry.Status = StatusProcessing
		entry.UpdatedAt = now
		cp := *entry
		claimed = append(claimed, &cp)
	}

	return claimed, nil
}

func (s *fakeStore) Complete(_ context.Context, entryID uuid.UUID, signature string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return ErrNotFound
	}

	if entry.Status == StatusCompleted {
		return nil
	}

	entry.Status = StatusCompleted
	entry.AttemptBlockhash = ""
	entry.UpdatedAt = now

	_ = signature

	return nil
}

func (s *fakeStore) Reschedule(_ context.Context, entryID uuid.UUID, delay time.Duration, pinnedBlockhash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return ErrNotFound
	}

	entry.Status = StatusPending
	entry.RetryCount++
	next := now.Add(delay)
	entry.NextRetryAt = &next
	entry.AttemptBlockhash = pinnedBlockhash
	entry.UpdatedAt = now

	return nil
}

func (s *fakeStore) Fail(_ context.Context, entryID uuid.UUID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return ErrNotFound
	}

	entry.Status = StatusFailed
	entry.AttemptBlockhash = ""
	entry.UpdatedAt = now

	_ = reason

	return nil
}

func (s *fakeStore) ReclaimZombies(_ context.Context, ageThreshold time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, entry := range s.entries {
		if entry.Status == StatusProcessing && now.Sub(entry.UpdatedAt) >= ageThreshold {
			entry.Status = StatusPending
			entry.UpdatedAt = now
			n++
		}
	}

	return n, nil
}

func (s *fakeStore) get(id uuid.UUID) *OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil
	}

	cp := *entry

	return &cp
}

// fakeLedger is a scriptable LedgerClient test double.
type fakeLedger struct {
	mu        sync.Mutex
	responses []SubmitOutcome
	calls     []fakeLedgerCall
}

type fakeLedgerCall struct {
	payload         []byte
	pinnedBlockhash string
}

func (l *fakeLedger) Submit(_ context.Context, payload []byte, pinnedBlockhash string) SubmitOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, fakeLedgerCall{payload: payload, pinnedBlockhash: pinnedBlockhash})

	if len(l.responses) == 0 {
		return SubmitOutcome{Kind: OutcomeSuccess, Signature: "sig-default", BlockhashUsed: "hash-default"}
	}

	idx := len(l.calls) - 1
	if idx >= len(l.responses) {
		idx = len(l.responses) - 1
	}

	return l.responses[idx]
}

func (l *fakeLedger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.calls)
}

func (l *fakeLedger) lastCall() fakeLedgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls[len(l.calls)-1]
}

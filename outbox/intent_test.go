//go:build unit

package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntentStore struct {
	entity *DomainEntity
	entry  *OutboxEntry
	err    error
}

func (s *fakeIntentStore) WriteIntent(_ context.Context, entity *DomainEntity, entry *OutboxEntry) error {
	if s.err != nil {
		return s.err
	}

	s.entity = entity
	s.entry = entry

	return nil
}

func TestNewIntentWriter_RequiresStore(t *testing.T) {
	t.Parallel()

	_, err := NewIntentWriter(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestIntentWriter_Write_Success(t *testing.T) {
	t.Parallel()

	store := &fakeIntentStore{}
	writer, err := NewIntentWriter(store)
	require.NoError(t, err)

	id, err := writer.Write(context.Background(), "entity-1", []byte(`{"a":1}`), []byte(`{"payload":true}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NotNil(t, store.entity)
	assert.Equal(t, "entity-1", store.entity.ID)
	assert.Equal(t, LedgerStatusPending, store.entity.LedgerStatus)
	assert.NotEmpty(t, store.entity.ContentHash)

	require.NotNil(t, store.entry)
	assert.Equal(t, StatusPending, store.entry.Status)
	assert.Equal(t, "entity-1", store.entry.AggregateID)
	assert.Equal(t, id, store.entry.ID)
}

func TestIntentWriter_Write_RejectsEmptyEntityID(t *testing.T) {
	t.Parallel()

	writer, err := NewIntentWriter(&fakeIntentStore{})
	require.NoError(t, err)

	_, err = writer.Write(context.Background(), "", nil, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntityRequired)
}

func TestIntentWriter_Write_RejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	writer, err := NewIntentWriter(&fakeIntentStore{})
	require.NoError(t, err)

	_, err = writer.Write(context.Background(), "entity-1", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayloadRequired)
}

func TestIntentWriter_Write_SurfacesStorageError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("connection reset")
	writer, err := NewIntentWriter(&fakeIntentStore{err: sentinel})
	require.NoError(t, err)

	_, err = writer.Write(context.Background(), "entity-1", nil, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

//go:build unit

package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/outboxbridge/core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldCapturingLogger records the fields passed to the last Log call so tests
// can assert on production-mode redaction without a real logging backend.
type fieldCapturingLogger struct {
	lastFields []log.Field
}

func (l *fieldCapturingLogger) Log(_ context.Context, _ log.Level, _ string, fields ...log.Field) {
	l.lastFields = fields
}

func (l *fieldCapturingLogger) With(_ ...log.Field) log.Logger { return l }

func (l *fieldCapturingLogger) WithGroup(_ string) log.Logger { return l }

func (l *fieldCapturingLogger) Enabled(_ log.Level) bool { return true }

func (l *fieldCapturingLogger) Sync(_ context.Context) error { return nil }

func TestSafeErrorRespectsProductionMode(t *testing.T) {
	errSentinel := errors.New("boom")
	initialMode := IsProductionMode()

	t.Cleanup(func() { SetProductionMode(initialMode) })

	SetProductionMode(false)
	logger := &fieldCapturingLogger{}
	log.SafeError(logger, context.Background(), "runtime integration", errSentinel, IsProductionMode())
	require.Len(t, logger.lastFields, 1)
	assert.Equal(t, "error", logger.lastFields[0].Key)
	assert.Equal(t, errSentinel, logger.lastFields[0].Value)

	SetProductionMode(true)
	logger = &fieldCapturingLogger{}
	log.SafeError(logger, context.Background(), "runtime integration", errSentinel, IsProductionMode())
	require.Len(t, logger.lastFields, 1)
	assert.Equal(t, "error_type", logger.lastFields[0].Key)
	assert.Equal(t, "*errors.errorString", logger.lastFields[0].Value)
}

// Package zaplog adapts go.uber.org/zap to the log.Logger interface.
package zaplog

import (
	"context"

	"github.com/outboxbridge/core/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements log.Logger on top of a *zap.Logger.
type Logger struct {
	logger      *zap.Logger
	atomicLevel zap.AtomicLevel
}

var _ log.Logger = (*Logger)(nil)

// New builds a Logger at the given minimum level, writing JSON-encoded
// entries to stderr. level follows log.Level's inverted severity ordering.
func New(level log.Level) (*Logger, error) {
	atomicLevel := zap.NewAtomicLevelAt(levelToZap(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger: zapLogger, atomicLevel: atomicLevel}, nil
}

// Wrap adapts an already-constructed *zap.Logger.
func Wrap(zapLogger *zap.Logger) *Logger {
	return &Logger{logger: zapLogger, atomicLevel: zap.NewAtomicLevel()}
}

func (l *Logger) must() *zap.Logger {
	if l == nil || l.logger == nil {
		return zap.NewNop()
	}

	return l.logger
}

// Log dispatches to the matching zap level, enriching the entry with the
// active span's trace/span IDs when ctx carries one.
func (l *Logger) Log(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	zapFields := fieldsToZap(fields)

	if ctx != nil {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			zapFields = append(zapFields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	switch level {
	case log.LevelDebug:
		l.must().Debug(msg, zapFields...)
	case log.LevelWarn:
		l.must().Warn(msg, zapFields...)
	case log.LevelError:
		l.must().Error(msg, zapFields...)
	default:
		l.must().Info(msg, zapFields...)
	}
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...log.Field) log.Logger {
	return &Logger{logger: l.must().With(fieldsToZap(fields)...), atomicLevel: l.atomicLevel}
}

// WithGroup namespaces subsequent fields under name.
func (l *Logger) WithGroup(name string) log.Logger {
	return &Logger{logger: l.must().With(zap.Namespace(name)), atomicLevel: l.atomicLevel}
}

// Enabled reports whether level would be emitted.
func (l *Logger) Enabled(level log.Level) bool {
	return l.must().Core().Enabled(levelToZap(level))
}

// Sync flushes buffered entries, honoring ctx cancellation.
func (l *Logger) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() { done <- l.must().Sync() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func levelToZap(level log.Level) zapcore.Level {
	switch level {
	case log.LevelDebug:
		return zapcore.DebugLevel
	case log.LevelWarn:
		return zapcore.WarnLevel
	case log.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fieldsToZap(fields []log.Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = zap.Any(f.Key, f.Value)
	}

	return zapFields
}

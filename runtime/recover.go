package runtime

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/outboxbridge/core/log"
)

// PanicPolicy controls what a recovery helper does after logging a recovered panic.
type PanicPolicy int

const (
	// KeepRunning logs the panic and lets the goroutine return normally.
	KeepRunning PanicPolicy = iota
	// CrashProcess logs the panic and then re-panics, terminating the process.
	CrashProcess
)

// RecoverAndLog recovers from a panic and logs it with a stack trace.
// Use in a defer statement for handlers and workers where a crash must be avoided.
//
// This does not record span events or report to the ErrorReporter; use
// RecoverAndLogWithContext for that.
func RecoverAndLog(ctx context.Context, logger log.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(ctx, logger, name, r)
	}
}

// RecoverAndLogWithContext recovers from a panic, logs it, and records the panic
// against the span carried by ctx (if any) and the configured ErrorReporter (if any).
func RecoverAndLogWithContext(ctx context.Context, logger log.Logger, component, name string) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		logPanicWithStack(ctx, logger, name, r, stack)
		recordPanicObservability(ctx, r, stack, component, name)
	}
}

// RecoverWithPolicyAndContext is like RecoverAndLogWithContext but lets the caller
// decide, via policy, whether the panic should be swallowed or re-raised.
func RecoverWithPolicyAndContext(ctx context.Context, logger log.Logger, component, name string, policy PanicPolicy) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		logPanicWithStack(ctx, logger, name, r, stack)
		recordPanicObservability(ctx, r, stack, component, name)

		if policy == CrashProcess {
			panic(r)
		}
	}
}

// HandlePanicValue processes a panic value that was already recovered by an external
// mechanism. It logs and records observability data without calling recover() itself.
func HandlePanicValue(ctx context.Context, logger log.Logger, panicValue any, component, name string) {
	if panicValue == nil {
		return
	}

	stack := debug.Stack()
	logPanicWithStack(ctx, logger, name, panicValue, stack)
	recordPanicObservability(ctx, panicValue, stack, component, name)
}

func logPanic(ctx context.Context, logger log.Logger, name string, panicValue any) {
	logPanicWithStack(ctx, logger, name, panicValue, debug.Stack())
}

func logPanicWithStack(ctx context.Context, logger log.Logger, name string, panicValue any, stack []byte) {
	if logger == nil {
		return
	}

	logger.Log(ctx, log.LevelError, "panic recovered",
		log.String("source", name),
		log.Any("panic_value", panicValue),
		log.String("stack_trace", string(stack)),
	)
}

func recordPanicObservability(ctx context.Context, panicValue any, stack []byte, component, name string) {
	RecordPanicToSpanWithComponent(ctx, panicValue, stack, component, name)
	reportPanicToErrorService(ctx, panicValue, stack, component, name)
}

// SafeGo runs fn in a new goroutine, recovering any panic with RecoverAndLog so a
// single faulty goroutine never brings the process down.
func SafeGo(ctx context.Context, logger log.Logger, name string, fn func(ctx context.Context)) {
	go func() {
		defer RecoverAndLog(ctx, logger, name)
		fn(ctx)
	}()
}

// SafeGoWithContextAndComponent runs fn in a new goroutine with full panic recovery
// and observability. policy controls whether a recovered panic is swallowed
// (KeepRunning) or re-raised after being recorded (CrashProcess).
func SafeGoWithContextAndComponent(
	ctx context.Context,
	logger log.Logger,
	component, name string,
	policy PanicPolicy,
	fn func(ctx context.Context),
) {
	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)
		fn(ctx)
	}()
}

// WaitGroupDone is a small helper so callers launching a SafeGo goroutine that
// must also signal a WaitGroup don't have to hand-roll the defer ordering:
// the WaitGroup is decremented even if fn panics and the panic is recovered.
func WaitGroupDone(wg *sync.WaitGroup, fn func()) func() {
	return func() {
		defer wg.Done()
		fn()
	}
}

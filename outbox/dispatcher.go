package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	outboxcore "github.com/outboxbridge/core"
	"github.com/outboxbridge/core/backoff"
	"github.com/outboxbridge/core/errgroup"
	"github.com/outboxbridge/core/log"
	"github.com/outboxbridge/core/runtime"
)

// Logger is the narrow interface the outbox package depends on for logging.
// log.Logger satisfies it.
type Logger = log.Logger

const tracerName = "github.com/outboxbridge/core/outbox"

// Dispatcher is a pool of cooperating worker goroutines that drain the
// outbox. It is itself a long-running component with a Run/Stop lifecycle,
// suitable for registration with a generic application launcher.
type Dispatcher struct {
	store  OutboxStore
	ledger LedgerClient
	cfg    Config

	logger        log.Logger
	meterProvider metric.MeterProvider
	metrics       *dispatcherMetrics
	tracer        trace.Tracer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	grp     *errgroup.Group
}

// NewDispatcher constructs a Dispatcher. store and ledger are required;
// options override defaults from DefaultConfig().
func NewDispatcher(store OutboxStore, ledger LedgerClient, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	if ledger == nil {
		return nil, ErrLedgerClientRequired
	}

	d := &Dispatcher{
		store:  store,
		ledger: ledger,
		cfg:    DefaultConfig(),
		logger: &log.NopLogger{},
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.cfg.normalize()

	metrics, err := newDispatcherMetrics(d.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: build metrics: %w", err)
	}

	d.metrics = metrics

	return d, nil
}

// Run implements the App interface so a Dispatcher can be registered with a
// generic Launcher (see the root package's App/Launcher pattern). It blocks
// until Stop is called and the worker group has returned; Launcher.Run spawns it on its own
// recovered goroutine, so a panic here never takes down the process.
func (d *Dispatcher) Run(_ *outboxcore.Launcher) error {
	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		cancel()

		return ErrDispatcherRunning
	}

	d.running = true
	d.cancel = cancel
	d.mu.Unlock()

	d.start(ctx)

	return d.wait()
}

// Start launches the worker goroutines and the zombie-sweep ticker, then
// returns immediately. Stop must be called to shut the Dispatcher down.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()

		return ErrDispatcherRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.mu.Unlock()

	d.start(runCtx)

	return nil
}

// wait blocks until the current run's worker pool and zombie-sweep loop have
// both returned. It is nil before the first Start/Run call.
func (d *Dispatcher) wait() error {
	d.mu.Lock()
	grp := d.grp
	d.mu.Unlock()

	if grp == nil {
		return nil
	}

	return grp.Wait()
}

// start fans the worker pool and the zombie-sweep loop out onto an
// errgroup.Group derived from ctx: a panic in any one of them is recovered,
// logged, and cancels every sibling's context rather than silently shrinking
// the pool by one goroutine.
func (d *Dispatcher) start(ctx context.Context) {
	grp, groupCtx := errgroup.WithContext(ctx)
	grp.SetLogger(d.logger)

	if d.cfg.EnableWorker {
		for i := 0; i < d.cfg.WorkerCount; i++ {
			workerID := i

			grp.Go(func() error {
				d.workerLoop(groupCtx, workerID)

				return nil
			})
		}
	}

	grp.Go(func() error {
		d.zombieSweepLoop(groupCtx)

		return nil
	})

	d.mu.Lock()
	d.grp = grp
	d.mu.Unlock()
}

// Stop signals every worker goroutine and the zombie-sweep ticker to exit and
// waits for them to return. An in-flight process_entry call runs on with a
// cancelled context; an entry whose store transition fails as a result is
// left in Processing for the next reclaim_zombies sweep.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()

		return ErrDispatcherNotRunning
	}

	cancel := d.cancel
	d.running = false
	d.mu.Unlock()

	cancel()

	return d.wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := d.store.Claim(ctx, d.cfg.BatchSize, time.Now().UTC())
		if err != nil {
			d.logger.Log(ctx, log.LevelError, "outbox claim failed",
				log.Int("worker_id", workerID), log.Err(err))

			if sleepErr := backoff.SleepWithContext(ctx, d.cfg.PollInterval); sleepErr != nil {
				return
			}

			continue
		}

		d.metrics.recordClaimed(ctx, len(claimed))

		if len(claimed) == 0 {
			if sleepErr := backoff.SleepWithContext(ctx, d.cfg.PollInterval); sleepErr != nil {
				return
			}

			continue
		}

		for _, entry := range claimed {
			d.processEntry(ctx, entry)
		}
	}
}

func (d *Dispatcher) zombieSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ZombieSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.store.ReclaimZombies(ctx, d.cfg.ZombieThreshold, time.Now().UTC())
			if err != nil {
				d.logger.Log(ctx, log.LevelError, "zombie reclaim failed", log.Err(err))

				continue
			}

			d.metrics.recordZombies(ctx, n)

			if n > 0 {
				d.logger.Log(ctx, log.LevelInfo, "zombies reclaimed", log.Int("count", n))
			}
		}
	}
}

// processEntry is the sticky-blockhash retry state machine: the heart of the
// design. It calls LedgerClient.Submit bounded by SubmitTimeout, classifies
// the outcome, and applies the corresponding OutboxStore transition.
func (d *Dispatcher) processEntry(ctx context.Context, entry *OutboxEntry) {
	ctx, span := d.tracer.Start(ctx, "outbox.process_entry",
		trace.WithAttributes(
			attribute.String("outbox.entry_id", entry.ID.String()),
			attribute.Int("outbox.retry_count", entry.RetryCount),
		))
	defer span.End()

	if entry.RetryCount >= d.cfg.MaxRetries {
		d.failExhausted(ctx, span, entry)

		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, d.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	d.metrics.submitStarted(ctx)
	outcome := d.ledger.Submit(submitCtx, entry.Payload, entry.AttemptBlockhash)
	d.metrics.submitFinished(ctx, float64(time.Since(start).Milliseconds()))
	d.metrics.recordOutcome(ctx, outcome.Kind)

	now := time.Now().UTC()

	switch outcome.Kind {
	case OutcomeSuccess:
		d.applyComplete(ctx, span, entry, outcome, now)
	case OutcomeBlockhashExpired:
		d.applyReschedule(ctx, span, entry, "" /* clear pin: expired blockhash cannot land */, now)
	case OutcomeRecoverable:
		d.applyRecoverable(ctx, span, entry, outcome, now)
	case OutcomeUnrecoverable:
		d.applyFail(ctx, span, entry, outcome.Reason, now)
	default:
		d.applyFail(ctx, span, entry, fmt.Errorf("unknown submit outcome kind %d", outcome.Kind), now)
	}
}

func (d *Dispatcher) applyComplete(ctx context.Context, span trace.Span, entry *OutboxEntry, outcome SubmitOutcome, now time.Time) {
	if err := d.store.Complete(ctx, entry.ID, outcome.Signature, now); err != nil {
		d.logStorageFailure(ctx, span, entry, "complete", err)

		return
	}

	span.SetStatus(codes.Ok, "completed")
}

// applyRecoverable handles RecoverableSubmissionError with or without a known
// blockhash: if one is known (the submit call got far enough to sign before
// failing), it must be pinned so the retry is idempotent; if not, any
// pre-existing pin on the entry is preserved rather than cleared.
func (d *Dispatcher) applyRecoverable(ctx context.Context, span trace.Span, entry *OutboxEntry, outcome SubmitOutcome, now time.Time) {
	pin := outcome.BlockhashUsed
	if pin == "" {
		pin = entry.AttemptBlockhash
	}

	d.applyReschedule(ctx, span, entry, pin, now)
}

func (d *Dispatcher) applyReschedule(ctx context.Context, span trace.Span, entry *OutboxEntry, pinnedBlockhash string, now time.Time) {
	delay := backoff.ExponentialCappedWithJitter(d.cfg.BackoffBase, entry.RetryCount, d.cfg.BackoffMax)

	if err := d.store.Reschedule(ctx, entry.ID, delay, pinnedBlockhash, now); err != nil {
		d.logStorageFailure(ctx, span, entry, "reschedule", err)

		return
	}

	span.SetStatus(codes.Ok, "rescheduled")
}

func (d *Dispatcher) applyFail(ctx context.Context, span trace.Span, entry *OutboxEntry, reason error, now time.Time) {
	if err := d.store.Fail(ctx, entry.ID, sanitizeErrorForStorage(reason), now); err != nil {
		d.logStorageFailure(ctx, span, entry, "fail", err)

		return
	}

	span.RecordError(reason)
	span.SetStatus(codes.Error, "failed")
}

func (d *Dispatcher) failExhausted(ctx context.Context, span trace.Span, entry *OutboxEntry) {
	d.metrics.recordRetryExhausted(ctx)

	reason := fmt.Errorf("%w: retry_count=%d max_retries=%d", ErrRetryBudgetExhausted, entry.RetryCount, d.cfg.MaxRetries)
	d.applyFail(ctx, span, entry, reason, time.Now().UTC())
}

// logStorageFailure leaves entry in Processing; the next reclaim_zombies
// sweep is the safety net per the error-handling design's propagation policy.
// The store error is logged through log.SafeError so a production deployment
// only ever records the error's type, never its (potentially sensitive)
// message text.
func (d *Dispatcher) logStorageFailure(ctx context.Context, span trace.Span, entry *OutboxEntry, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")

	msg := fmt.Sprintf("outbox store operation failed op=%s entry_id=%s", op, entry.ID.String())
	log.SafeError(d.logger, ctx, msg, err, runtime.IsProductionMode())
}

package outbox

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/outboxbridge/core/log"
)

const (
	defaultWorkerCount     = 1
	defaultBatchSize       = 10
	defaultPollInterval    = 1 * time.Second
	defaultBackoffBase     = 1 * time.Second
	defaultBackoffMax      = 5 * time.Minute
	defaultMaxRetries      = 10
	defaultZombieThreshold = 5 * time.Minute
	defaultSubmitTimeout   = 30 * time.Second
	defaultZombieSweepTick = 30 * time.Second
)

// Config controls Dispatcher polling, retry, and resource behavior.
//
// Zero-valued numeric and duration fields are filled by normalize() with the
// defaults recommended alongside each knob; EnableWorker is kept as set.
type Config struct {
	// WorkerCount is the number of concurrent claim/process goroutines.
	WorkerCount int
	// BatchSize is the max number of entries claimed per poll.
	BatchSize int
	// PollInterval is the sleep between empty claim attempts.
	PollInterval time.Duration
	// BackoffBase is the base duration for exponential reschedule backoff.
	BackoffBase time.Duration
	// BackoffMax caps the exponential reschedule backoff before jitter.
	BackoffMax time.Duration
	// MaxRetries is the retry_count threshold at which an entry is terminally failed.
	MaxRetries int
	// ZombieThreshold is the Processing age past which an entry is reclaimed.
	ZombieThreshold time.Duration
	// SubmitTimeout bounds every LedgerClient.Submit call.
	SubmitTimeout time.Duration
	// ZombieSweepInterval is the cadence of the dedicated reclaim-zombies ticker.
	ZombieSweepInterval time.Duration
	// EnableWorker toggles whether Run spawns worker goroutines at all,
	// letting a process host a Dispatcher registered but idle (e.g. for
	// maintenance mode) without a separate build.
	EnableWorker bool
}

// DefaultConfig returns the baseline Dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		WorkerCount:         defaultWorkerCount,
		BatchSize:           defaultBatchSize,
		PollInterval:        defaultPollInterval,
		BackoffBase:         defaultBackoffBase,
		BackoffMax:          defaultBackoffMax,
		MaxRetries:          defaultMaxRetries,
		ZombieThreshold:     defaultZombieThreshold,
		SubmitTimeout:       defaultSubmitTimeout,
		ZombieSweepInterval: defaultZombieSweepTick,
		EnableWorker:        true,
	}
}

func (cfg *Config) normalize() {
	defaults := DefaultConfig()

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = defaults.WorkerCount
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaults.BatchSize
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}

	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaults.BackoffMax
	}

	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaults.MaxRetries
	}

	if cfg.ZombieThreshold <= 0 {
		cfg.ZombieThreshold = defaults.ZombieThreshold
	}

	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaults.SubmitTimeout
	}

	if cfg.ZombieSweepInterval <= 0 {
		cfg.ZombieSweepInterval = defaults.ZombieSweepInterval
	}
}

// Option mutates a Dispatcher's configuration at construction.
type Option func(*Dispatcher)

// WithWorkerCount sets the number of concurrent worker goroutines.
func WithWorkerCount(count int) Option {
	return func(d *Dispatcher) {
		if count > 0 {
			d.cfg.WorkerCount = count
		}
	}
}

// WithBatchSize sets the max entries claimed per poll.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.cfg.BatchSize = size
		}
	}
}

// WithPollInterval sets the sleep between empty claim attempts.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.cfg.PollInterval = interval
		}
	}
}

// WithBackoff sets the base and max duration for exponential reschedule backoff.
func WithBackoff(base, max time.Duration) Option { //nolint:predeclared // matches the domain term "max delay"
	return func(d *Dispatcher) {
		if base > 0 {
			d.cfg.BackoffBase = base
		}

		if max > 0 {
			d.cfg.BackoffMax = max
		}
	}
}

// WithMaxRetries sets the retry_count threshold at which an entry fails terminally.
func WithMaxRetries(maxRetries int) Option {
	return func(d *Dispatcher) {
		if maxRetries > 0 {
			d.cfg.MaxRetries = maxRetries
		}
	}
}

// WithZombieThreshold sets the Processing age past which an entry is reclaimed.
func WithZombieThreshold(threshold time.Duration) Option {
	return func(d *Dispatcher) {
		if threshold > 0 {
			d.cfg.ZombieThreshold = threshold
		}
	}
}

// WithZombieSweepInterval sets the cadence of the dedicated reclaim-zombies ticker.
func WithZombieSweepInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.cfg.ZombieSweepInterval = interval
		}
	}
}

// WithSubmitTimeout bounds every LedgerClient.Submit call.
func WithSubmitTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.cfg.SubmitTimeout = timeout
		}
	}
}

// WithEnableWorker toggles whether Run spawns worker goroutines.
func WithEnableWorker(enabled bool) Option {
	return func(d *Dispatcher) {
		d.cfg.EnableWorker = enabled
	}
}

// WithLogger injects a structured logger. A nil logger is replaced by a no-op one.
func WithLogger(logger log.Logger) Option {
	return func(d *Dispatcher) {
		if logger == nil {
			return
		}

		d.logger = logger
	}
}

// WithMeterProvider injects a custom OpenTelemetry meter provider. Passing nil
// keeps the default no-op provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if provider == nil {
			return
		}

		d.meterProvider = provider
	}
}

package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/outboxbridge/core/log"
	"github.com/sony/gobreaker"
)

var (
	// ErrNilLogger is returned by NewManager when logger is nil.
	ErrNilLogger = errors.New("circuitbreaker: logger must not be nil")
	// ErrNilManager is returned by NewHealthCheckerWithValidation when manager is nil.
	ErrNilManager = errors.New("circuitbreaker: manager must not be nil")
	// ErrInvalidCircuitBreakerConfig is returned by GetOrCreate for a non-positive Config field.
	ErrInvalidCircuitBreakerConfig = errors.New("circuitbreaker: invalid configuration")
)

type manager struct {
	breakers  map[string]*gobreaker.CircuitBreaker
	configs   map[string]Config // Store configs for safe reset
	listeners []StateChangeListener
	mu        sync.RWMutex
	logger    log.Logger
}

// NewManager creates a new circuit breaker manager
func NewManager(logger log.Logger) (Manager, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &manager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		configs:   make(map[string]Config),
		listeners: make([]StateChangeListener, 0),
		logger:    logger,
	}, nil
}

func validateCircuitBreakerConfig(config Config) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("%w: max requests must be positive", ErrInvalidCircuitBreakerConfig)
	}

	if config.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidCircuitBreakerConfig)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidCircuitBreakerConfig)
	}

	if config.ConsecutiveFailures == 0 {
		return fmt.Errorf("%w: consecutive failures must be positive", ErrInvalidCircuitBreakerConfig)
	}

	if config.MinRequests == 0 {
		return fmt.Errorf("%w: min requests must be positive", ErrInvalidCircuitBreakerConfig)
	}

	return nil
}

func (m *manager) GetOrCreate(serviceName string, config Config) (CircuitBreaker, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if exists {
		return &circuitBreaker{breaker: breaker}, nil
	}

	if err := validateCircuitBreakerConfig(config); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[serviceName]; exists {
		return &circuitBreaker{breaker: breaker}, nil
	}

	// Create new circuit breaker with configuration
	settings := gobreaker.Settings{
		Name:        "service-" + serviceName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.ConsecutiveFailures >= config.ConsecutiveFailures ||
				(counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.handleStateChange(serviceName, from, to)
		},
	}

	breaker = gobreaker.NewCircuitBreaker(settings)
	m.breakers[serviceName] = breaker
	m.configs[serviceName] = config // Store config for safe reset

	m.logger.Log(context.Background(), log.LevelInfo, "created circuit breaker for service", log.String("service", serviceName))

	return &circuitBreaker{breaker: breaker}, nil
}

func (m *manager) Execute(serviceName string, fn func() (any, error)) (any, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("circuit breaker not found for service: %s (call GetOrCreate first)", serviceName)
	}

	result, err := breaker.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState {
			m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker open, request rejected immediately", log.String("service", serviceName))
			return nil, fmt.Errorf("service %s is currently unavailable (circuit breaker open): %w", serviceName, err)
		}

		if err == gobreaker.ErrTooManyRequests {
			m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker half-open, too many test requests", log.String("service", serviceName))
			return nil, fmt.Errorf("service %s is recovering (too many requests): %w", serviceName, err)
		}
	}

	return result, err
}

func (m *manager) GetState(serviceName string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	state := breaker.State()
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func (m *manager) GetCounts(serviceName string) Counts {
	m.mu.RLock()
	breaker, exists := m.breakers[serviceName]
	m.mu.RUnlock()

	if !exists {
		return Counts{}
	}

	counts := breaker.Counts()

	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func (m *manager) IsHealthy(serviceName string) bool {
	state := m.GetState(serviceName)
	// Only CLOSED state is considered healthy
	// OPEN and HALF-OPEN both need health checker intervention
	isHealthy := state == StateClosed
	m.logger.Log(context.Background(), log.LevelDebug, "health check",
		log.String("service", serviceName), log.String("state", string(state)), log.Bool("healthy", isHealthy))

	return isHealthy
}

func (m *manager) Reset(serviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.breakers[serviceName]; exists {
		m.logger.Log(context.Background(), log.LevelInfo, "resetting circuit breaker", log.String("service", serviceName))

		// Get stored config
		config, configExists := m.configs[serviceName]
		if !configExists {
			m.logger.Log(context.Background(), log.LevelWarn, "no stored config found, cannot recreate breaker", log.String("service", serviceName))
			delete(m.breakers, serviceName)

			return
		}

		// Recreate circuit breaker with same configuration
		settings := gobreaker.Settings{
			Name:        "service-" + serviceName,
			MaxRequests: config.MaxRequests,
			Interval:    config.Interval,
			Timeout:     config.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

				return counts.ConsecutiveFailures >= config.ConsecutiveFailures ||
					(counts.Requests >= config.MinRequests && failureRatio >= config.FailureRatio)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				m.handleStateChange(serviceName, from, to)
			},
		}

		breaker := gobreaker.NewCircuitBreaker(settings)
		m.breakers[serviceName] = breaker

		m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker reset completed", log.String("service", serviceName))
	}
}

// RegisterStateChangeListener registers a listener for state change notifications
func (m *manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		m.logger.Log(context.Background(), log.LevelWarn, "attempted to register a nil state change listener")

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
	m.logger.Log(context.Background(), log.LevelDebug, "registered state change listener", log.Int("total", len(m.listeners)))
}

// handleStateChange processes state changes and notifies listeners
func (m *manager) handleStateChange(serviceName string, from gobreaker.State, to gobreaker.State) {
	m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker state changed",
		log.String("service", serviceName), log.String("from", from.String()), log.String("to", to.String()))

	switch to {
	case gobreaker.StateOpen:
		m.logger.Log(context.Background(), log.LevelError, "circuit breaker opened, requests will fast-fail", log.String("service", serviceName))
	case gobreaker.StateHalfOpen:
		m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker half-open, testing service recovery", log.String("service", serviceName))
	case gobreaker.StateClosed:
		m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker closed, service is healthy", log.String("service", serviceName))
	}

	// Notify listeners
	fromState := convertGobreakerState(from)
	toState := convertGobreakerState(to)

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		// Notify in goroutine to avoid blocking circuit breaker operations
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Log(context.Background(), log.LevelError, "state change listener panicked",
						log.String("service", serviceName), log.Any("panic", r))
				}
			}()

			l.OnStateChange(serviceName, fromState, toState)
		}(listener)
	}
}

// convertGobreakerState converts gobreaker.State to our State type
func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

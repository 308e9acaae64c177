package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/logging"
	"ledgerd/internal/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts; 0 never resets.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

type ResilientConfig struct {
	// Timeout bounds every durable call; 0 disables it.
	Timeout time.Duration
	Breaker BreakerConfig
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 2 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// ResilientStore guards a DurableStore with a timeout and a circuit breaker.
// Every failure surfaces as apperr.ErrUnavailable so callers fail closed.
type ResilientStore struct {
	store   DurableStore
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger
}

func NewResilientStore(store DurableStore, cfg ResilientConfig, logger *logging.Logger, collector metrics.Collector) *ResilientStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	rs := &ResilientStore{
		store:   store,
		timeout: cfg.Timeout,
		logger:  logger.Named("resilience").Named(store.Name()),
	}
	rs.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "revocation-" + store.Name(),
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			rs.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, circuitState(to))
		},
	})
	return rs
}

func (rs *ResilientStore) Name() string {
	return rs.store.Name()
}

func (rs *ResilientStore) Add(ctx context.Context, key string, expiresAt time.Time) error {
	ctx, cancel := rs.withTimeout(ctx)
	defer cancel()
	_, err := rs.cb.Execute(func() (any, error) {
		return nil, rs.store.Add(ctx, key, expiresAt)
	})
	return rs.classify(ctx, "add", err)
}

func (rs *ResilientStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := rs.withTimeout(ctx)
	defer cancel()
	v, err := rs.cb.Execute(func() (any, error) {
		return rs.store.Exists(ctx, key)
	})
	if err := rs.classify(ctx, "exists", err); err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (rs *ResilientStore) State() gobreaker.State {
	return rs.cb.State()
}

func (rs *ResilientStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if rs.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, rs.timeout)
}

func (rs *ResilientStore) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rs.logger.Warn("circuit breaker rejected request", zap.String("operation", op))
		return fmt.Errorf("%w: %s circuit open", apperr.ErrUnavailable, rs.store.Name())
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		rs.logger.Warn("durable store timeout",
			zap.String("operation", op),
			zap.Duration("timeout", rs.timeout),
		)
		return fmt.Errorf("%w: %s timed out", apperr.ErrUnavailable, rs.store.Name())
	default:
		rs.logger.Error("durable store failed", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", apperr.ErrUnavailable, rs.store.Name(), err)
	}
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

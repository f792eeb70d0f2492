// Package throttle wraps remote calls with bounded retry and exponential
// backoff.
//
// Every failure is retried with the same policy; the error class only
// decides how loudly the failure is reported. Attempts and waits are
// strictly sequential and every wait is a timer selected against the
// context, so an Invoker never holds a thread while backing off.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for throttled operations.
var (
	notionRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_retries_total",
		Help: "Total number of retry attempts by operation label and error class",
	}, []string{"label", "error_class"})

	notionRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notion_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by operation label",
		Buckets: []float64{0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6, 51.2, 102.4},
	}, []string{"label"})

	notionRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_retry_exhausted_total",
		Help: "Total number of operations that exhausted their attempt budget",
	}, []string{"label"})
)

// Config holds the retry policy.
type Config struct {
	// MaxAttempts is the attempt budget, including the first call.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// Multiplier grows the delay after every failed attempt. The delay is
	// not capped.
	Multiplier float64
}

// DefaultConfig returns the policy used against the Notion API.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 400 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Invoker runs operations under a retry policy. It holds no per-call
// state and is safe for concurrent use.
type Invoker struct {
	config Config
	sleep  SleepFunc
	logger zerolog.Logger
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithSleep replaces the wait function (tests use it to record delays).
func WithSleep(fn SleepFunc) Option {
	return func(inv *Invoker) {
		inv.sleep = fn
	}
}

// WithLogger sets the logger used for attempt diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(inv *Invoker) {
		inv.logger = logger
	}
}

// New creates an Invoker. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Invoker {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}

	inv := &Invoker{
		config: cfg,
		sleep:  Sleep,
		logger: log.With().Str("component", "throttle").Logger(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Config returns the effective retry policy.
func (inv *Invoker) Config() Config {
	return inv.config
}

// Run calls fn until it succeeds or the attempt budget is spent.
//
// Between attempt k and k+1 it waits InitialDelay * Multiplier^(k-1). The
// context is checked before every attempt. Exhaustion returns an
// *ExhaustedError naming label; cancellation returns an error matching
// ErrContextCancelled.
func (inv *Invoker) Run(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := inv.config.InitialDelay

	for attempt := 1; attempt <= inv.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(label, attempt, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				inv.logger.Info().
					Str("label", label).
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if attempt >= inv.config.MaxAttempts {
			break
		}

		class := Classify(err)
		notionRetriesTotal.WithLabelValues(label, string(class)).Inc()
		notionRetryBackoffSeconds.WithLabelValues(label).Observe(delay.Seconds())

		event := inv.logger.Debug()
		if class == ErrorClassOverload {
			event = inv.logger.Warn()
		}
		event.
			Err(err).
			Str("label", label).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Int("max_attempts", inv.config.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying operation after backoff")

		if err := inv.sleep(ctx, delay); err != nil {
			inv.logger.Warn().
				Str("label", label).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return cancelled(label, attempt+1, err)
		}

		delay = time.Duration(float64(delay) * inv.config.Multiplier)
	}

	notionRetryExhaustedTotal.WithLabelValues(label).Inc()
	inv.logger.Error().
		Err(lastErr).
		Str("label", label).
		Str("error_class", string(Classify(lastErr))).
		Int("max_attempts", inv.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{
		Label:    label,
		Attempts: inv.config.MaxAttempts,
		Err:      lastErr,
	}
}

// Invoke runs op through inv and returns its result.
func Invoke[T any](ctx context.Context, inv *Invoker, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := inv.Run(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func cancelled(label string, attempt int, cause error) error {
	return fmt.Errorf("%s: %w before attempt %d: %w", label, ErrContextCancelled, attempt, cause)
}

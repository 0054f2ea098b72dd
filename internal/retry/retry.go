// Package retry polls a condition with capped, exponentially growing delays.
//
// It backs readiness checks (waiting for a VM to report a power state), not
// remote mutations: create and lifecycle requests are issued exactly once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("attempts exhausted")

// Config holds polling configuration.
type Config struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Option is a functional option for Config.
type Option func(*Config)

// WithAttempts caps the number of attempts (minimum 1).
func WithAttempts(n int) Option {
	return func(c *Config) {
		if n < 1 {
			n = 1
		}
		c.Attempts = n
	}
}

// WithInitialDelay sets the delay after the first failed attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) { c.InitialDelay = d }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

// WithMultiplier sets the backoff multiplier.
func WithMultiplier(m float64) Option {
	return func(c *Config) { c.Multiplier = m }
}

func newConfig(opts []Option) Config {
	cfg := Config{
		Attempts:     5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// BackOff builds the schedule Do follows: exponential delays bounded by
// MaxDelay, at most Attempts-1 retries, stopped early when ctx is done.
func BackOff(ctx context.Context, opts ...Option) backoff.BackOffContext {
	cfg := newConfig(opts)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.Multiplier = cfg.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	if cfg.MaxDelay > 0 {
		exp.MaxInterval = cfg.MaxDelay
	}
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.Attempts-1)), ctx)
}

// Do runs op until it returns nil, a Fatal error, the context is done, or
// the attempts run out. The returned error wraps the last failure.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	cfg := newConfig(opts)

	attempts := 0
	var lastErr error
	var fatal bool
	err := backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			fatal = true
		}
		if err != nil {
			lastErr = err
		}
		return err
	}, BackOff(ctx, opts...))

	switch {
	case err == nil:
		return nil
	case fatal:
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("cancelled after %d attempts: %w", attempts, errors.Join(ctx.Err(), lastErr))
	default:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.Attempts, lastErr)
	}
}

// Fatal wraps err so Do returns it without further attempts.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

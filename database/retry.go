package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"msgstore/models"
	"msgstore/observability"
)

// RetryPolicy bounds the retries of a single store call.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second}

// Backoff is the delay before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-transient error, the
// attempts run out or ctx is done. Logical errors are returned as-is on the
// first attempt. Exhausted transient failures wrap ErrTransientConnectivity,
// plus ctx's error when ctx ended the retries.
func Retry(ctx context.Context, p RetryPolicy, log *zap.Logger, op string, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == p.Attempts || ctx.Err() != nil {
			break
		}

		delay := p.Backoff(attempt)
		observability.StoreRetries.WithLabelValues(op).Inc()
		log.Warn("transient store error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return giveUp(ctx, op, err)
		case <-timer.C:
		}
	}
	return giveUp(ctx, op, err)
}

// giveUp wraps the last transient failure. When ctx ended the wait, its
// error is kept in the chain so deadlines stay distinguishable from outages.
func giveUp(ctx context.Context, op string, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%s: %w: %w: %w", op, models.ErrTransientConnectivity, cerr, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrTransientConnectivity, err)
}

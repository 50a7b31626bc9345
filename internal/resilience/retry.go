package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
)

// Retrier absorbs transient failures of a single call with exponential
// backoff. An operation is attempted MaxRetries+1 times in total, sleeping
// BaseDelay, BaseDelay*Factor, ... between attempts. Non-retryable faults
// (see faults.Retryable) abort the loop immediately.
type Retrier struct {
	name       string
	maxRetries int
	baseDelay  time.Duration
	factor     float64

	timer backoff.Timer // test seam, nil means real timer
	log   *logger.Logger
}

// Default retry tuning, matching the processor's historical behavior.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultFactor     = 2.0
)

// NewRetrier returns a retrier for the named operation.
func NewRetrier(name string, maxRetries int, baseDelay time.Duration, factor float64) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if factor <= 0 {
		factor = DefaultFactor
	}
	return &Retrier{
		name:       name,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		factor:     factor,
		log:        logger.New(),
	}
}

// Do runs op, retrying eligible failures until the attempt budget is spent.
// On success at any attempt the result is returned immediately. On exhaustion
// the last underlying error is wrapped in a retries-exhausted fault.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.Multiplier = r.factor
	bo.RandomizationFactor = 0
	bo.MaxInterval = 24 * time.Hour
	bo.MaxElapsedTime = 0

	attempt := 0
	var lastErr error
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !faults.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		r.log.WithError(err).
			WithField("operation", r.name).
			WithField("attempt", attempt).
			WithField("next_delay", delay.String()).
			Warn("attempt failed, backing off")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.maxRetries)), ctx)
	err := backoff.RetryNotifyWithTimer(wrapped, policy, notify, r.timer)
	if err == nil {
		return nil
	}
	if !faults.Retryable(err) {
		// Terminal fault, passed through untouched for the pipeline to classify.
		return err
	}
	r.log.WithError(lastErr).
		WithField("operation", r.name).
		WithField("attempts", attempt).
		Error("all retry attempts failed")
	return faults.RetriesExhausted(r.name, attempt, lastErr)
}

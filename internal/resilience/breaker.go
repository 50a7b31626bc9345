// Package resilience wraps the pipeline's unreliable collaborator calls with
// a circuit breaker and exponential-backoff retries.
package resilience

import (
	"sync"
	"time"

	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/logger"
)

// BreakerState is the circuit breaker's current state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker stops hammering a collaborator that is persistently failing.
// Failures on any item count toward the same threshold; the breaker protects
// a collaborator kind, not an individual recording. One instance per
// collaborator, owned by the processor.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time

	now func() time.Time // test seam
	log *logger.Logger

	onStateChange func(name string, state BreakerState)
}

// NewBreaker returns a closed breaker that opens after failureThreshold
// consecutive failures and admits a probe call after recoveryTimeout.
func NewBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
		log:              logger.New(),
	}
}

// OnStateChange registers a hook invoked on every state transition.
func (b *Breaker) OnStateChange(fn func(name string, state BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs op through the breaker. When the breaker is open and the recovery
// timeout has not elapsed, op is never invoked and a circuit-open fault is
// returned immediately. A success from any state resets the breaker; a
// failure always re-raises op's error to the caller.
func (b *Breaker) Call(op func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op()
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailureTime) < b.recoveryTimeout {
		return faults.CircuitOpen(b.name)
	}
	b.setState(StateHalfOpen)
	b.log.WithField("breaker", b.name).Info("circuit breaker entering half-open state")
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.log.WithField("breaker", b.name).Info("circuit breaker reset to closed state")
	}
	b.setState(StateClosed)
	b.failureCount = 0
	b.lastFailureTime = time.Time{}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	// A failed half-open probe lands here with its count still at or above
	// the threshold, so it reopens immediately.
	if b.failureCount >= b.failureThreshold {
		if b.state != StateOpen {
			b.log.WithField("breaker", b.name).
				WithField("failures", b.failureCount).
				Warn("circuit breaker opened")
		}
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onStateChange != nil {
		b.onStateChange(b.name, s)
	}
}

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylenessen/ramble/internal/faults"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 7, 11, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", threshold, recovery)
	b.now = clock.Now
	return b, clock
}

func failNTimes(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := b.Call(func() error { return errors.New("boom") })
		require.Error(t, err)
	}
}

func TestBreaker_PassesThroughWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	calls := 0
	err := b.Call(func() error { calls++; return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	failNTimes(t, b, 2)
	assert.Equal(t, StateClosed, b.State())

	failNTimes(t, b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenFastFailsWithoutInvoking(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	failNTimes(t, b, 2)

	calls := 0
	err := b.Call(func() error { calls++; return nil })

	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindCircuitOpen))
	assert.Equal(t, 0, calls, "open breaker must not attempt the operation")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	failNTimes(t, b, 2)
	require.NoError(t, b.Call(func() error { return nil }))

	// The count restarted, so two more failures stay below the threshold.
	failNTimes(t, b, 2)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)
	failNTimes(t, b, 2)

	clock.Advance(59 * time.Second)
	err := b.Call(func() error { return nil })
	require.Error(t, err, "recovery window not elapsed yet")
	assert.True(t, faults.Is(err, faults.KindCircuitOpen))

	clock.Advance(2 * time.Second)
	calls := 0
	require.NoError(t, b.Call(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)
	failNTimes(t, b, 2)

	clock.Advance(2 * time.Minute)
	err := b.Call(func() error { return errors.New("still down") })
	require.EqualError(t, err, "still down")
	assert.Equal(t, StateOpen, b.State())

	// And the window restarts from the probe failure.
	err = b.Call(func() error { return nil })
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindCircuitOpen))
}

func TestBreaker_ReRaisesUnderlyingError(t *testing.T) {
	b, _ := newTestBreaker(5, time.Minute)

	underlying := errors.New("provider exploded")
	err := b.Call(func() error { return underlying })

	assert.ErrorIs(t, err, underlying)
}

func TestBreaker_StateChangeHook(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	var states []BreakerState
	b.OnStateChange(func(_ string, s BreakerState) { states = append(states, s) })

	failNTimes(t, b, 1)
	clock.Advance(2 * time.Minute)
	require.NoError(t, b.Call(func() error { return nil }))

	assert.Equal(t, []BreakerState{StateOpen, StateHalfOpen, StateClosed}, states)
}

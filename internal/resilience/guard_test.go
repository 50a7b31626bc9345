package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylenessen/ramble/internal/faults"
)

func newTestGuard(threshold, maxRetries int) (*Guard, *fakeClock) {
	b, clock := newTestBreaker(threshold, 5*time.Minute)
	r, _ := newTestRetrier(maxRetries, time.Millisecond, 2.0)
	return NewGuard(b, r), clock
}

func TestGuard_ExhaustedRetriesCountOnceTowardBreaker(t *testing.T) {
	g, _ := newTestGuard(2, 3)

	calls := 0
	err := g.Call(context.Background(), func() error {
		calls++
		return faults.Transportf("upload", "flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "one guard call runs the full retry budget")
	assert.Equal(t, StateClosed, g.Breaker().State(),
		"a single exhausted sequence is one failure, below the threshold")

	_ = g.Call(context.Background(), func() error {
		return faults.Transportf("upload", "flaky")
	})
	assert.Equal(t, StateOpen, g.Breaker().State())
}

func TestGuard_OpenBreakerSkipsRetriesEntirely(t *testing.T) {
	g, _ := newTestGuard(1, 3)

	_ = g.Call(context.Background(), func() error {
		return faults.Transportf("upload", "flaky")
	})
	require.Equal(t, StateOpen, g.Breaker().State())

	calls := 0
	err := g.Call(context.Background(), func() error { calls++; return nil })

	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindCircuitOpen))
	assert.Equal(t, 0, calls)
}

func TestGuard_SuccessResetsBreaker(t *testing.T) {
	g, clock := newTestGuard(1, 0)

	_ = g.Call(context.Background(), func() error {
		return faults.Transportf("upload", "flaky")
	})
	require.Equal(t, StateOpen, g.Breaker().State())

	clock.Advance(10 * time.Minute)
	err := g.Call(context.Background(), func() error { return nil })

	require.NoError(t, err)
	assert.Equal(t, StateClosed, g.Breaker().State())
}

func TestGuard_ContentFaultFailsFastButStillCounts(t *testing.T) {
	g, _ := newTestGuard(1, 3)

	calls := 0
	err := g.Call(context.Background(), func() error {
		calls++
		return faults.Contentf("enhance", "not json")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, faults.Is(err, faults.KindContent))
	assert.Equal(t, StateOpen, g.Breaker().State())
}

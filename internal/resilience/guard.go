package resilience

import "context"

// Guard is the breaker-wrapped-retry composition for one collaborator kind,
// built once at startup and handed to the pipeline. The breaker sees a fully
// retried-and-exhausted sequence as a single failure toward its threshold.
type Guard struct {
	breaker *Breaker
	retrier *Retrier
}

// NewGuard composes a breaker around a retrier.
func NewGuard(breaker *Breaker, retrier *Retrier) *Guard {
	return &Guard{breaker: breaker, retrier: retrier}
}

// Call executes op through the breaker, with retries inside.
func (g *Guard) Call(ctx context.Context, op func() error) error {
	return g.breaker.Call(func() error {
		return g.retrier.Do(ctx, op)
	})
}

// Breaker exposes the underlying breaker for state inspection.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

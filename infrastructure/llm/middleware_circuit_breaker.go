package llm

import (
	"context"

	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

// breakerVision guards provider calls with a shared circuit breaker.
// When the provider fails repeatedly the breaker opens and calls fail fast
// with resilience.ErrBreakerOpen instead of piling onto a degraded service.
type breakerVision struct {
	next    CoreVision
	breaker *resilience.Breaker
}

// BreakerMiddleware wraps provider calls in the given circuit breaker.
// The breaker is injected rather than constructed here so production
// wiring can share one breaker per provider across the process while
// tests build fresh ones.
func BreakerMiddleware(breaker *resilience.Breaker) Middleware {
	return func(next CoreVision) CoreVision {
		return &breakerVision{next: next, breaker: breaker}
	}
}

// DoRequest executes the request through the circuit breaker.
func (b *breakerVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	var resp Response
	err := b.breaker.Do(func() error {
		var err error
		resp, err = b.next.DoRequest(ctx, req)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (b *breakerVision) GetModel() string { return b.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (b *breakerVision) SetModel(m string) { b.next.SetModel(m) }

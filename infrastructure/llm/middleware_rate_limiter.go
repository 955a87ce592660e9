package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// rateLimitedVision throttles outbound provider calls with a token bucket.
// The limiter is intentionally shared process-wide: there is one external
// AI quota, so every judge call in the process draws from the same bucket.
type rateLimitedVision struct {
	next    CoreVision
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware enforcing a token-bucket rate
// limit. Acquiring a token may suspend the caller briefly.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreVision) CoreVision {
		return &rateLimitedVision{next: next, limiter: limiter}
	}
}

// RateLimitMiddlewareWithLimiter wraps an externally constructed limiter so
// production wiring can share one bucket across clients.
func RateLimitMiddlewareWithLimiter(limiter *rate.Limiter) Middleware {
	return func(next CoreVision) CoreVision {
		return &rateLimitedVision{next: next, limiter: limiter}
	}
}

// DoRequest waits for rate-limit permission before forwarding the request.
func (r *rateLimitedVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, req)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedVision) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedVision) SetModel(m string) { r.next.SetModel(m) }

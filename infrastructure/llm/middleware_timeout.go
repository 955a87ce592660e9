package llm

import (
	"context"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// timeoutVision bounds each provider call with a deadline. A stuck call is
// limited by this timeout only; there is no external cancel signal threaded
// through evaluation passes.
type timeoutVision struct {
	next    CoreVision
	timeout time.Duration
}

// TimeoutMiddleware creates middleware enforcing a per-request timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreVision) CoreVision {
		return &timeoutVision{next: next, timeout: timeout}
	}
}

// DoRequest executes the request with a timeout context.
func (t *timeoutVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, req)
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutVision) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *timeoutVision) SetModel(m string) { t.next.SetModel(m) }

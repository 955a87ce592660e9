package llm

import (
	"context"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

// retryVision retries transient provider failures with exponential backoff.
// Non-retryable failures (authentication, bad requests) pass through
// immediately; they indicate a deployment mistake, not a transient fault.
type retryVision struct {
	next   CoreVision
	policy resilience.Policy
}

// RetryMiddleware creates middleware retrying transient failures up to
// maxAttempts total attempts with exponential backoff from baseDelay.
func RetryMiddleware(maxAttempts int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreVision) CoreVision {
		return &retryVision{
			next: next,
			policy: resilience.Policy{
				MaxAttempts: maxAttempts,
				BaseDelay:   baseDelay,
				MaxDelay:    maxDelay,
				Jitter:      true,
				Retryable:   IsRetryableError,
			},
		}
	}
}

// DoRequest executes the request under the retry policy.
func (r *retryVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	var resp Response
	err := resilience.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		resp, err = r.next.DoRequest(ctx, req)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryVision) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *retryVision) SetModel(m string) { r.next.SetModel(m) }

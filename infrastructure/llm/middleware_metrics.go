package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

// metricsVision records latency, request counts, and token usage for every
// provider call.
type metricsVision struct {
	next      CoreVision
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreVision) CoreVision {
		return &metricsVision{next: next, collector: collector}
	}
}

// DoRequest executes the request while recording metrics.
func (m *metricsVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	start := time.Now()
	resp, err := m.next.DoRequest(ctx, req)

	labels := map[string]string{
		"provider": m.extractProvider(),
		"model":    m.next.GetModel(),
		"status":   "success",
	}
	switch {
	case err == nil:
	case errors.Is(err, resilience.ErrBreakerOpen):
		labels["status"] = "circuit_open"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		labels["status"] = "timeout"
	default:
		labels["status"] = "error"
	}

	if m.collector != nil {
		m.collector.RecordLatency("vision_request", time.Since(start), labels)
		m.collector.RecordCounter("vision_requests_total", 1, labels)

		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("vision_tokens_total", float64(resp.TokensIn), labels)
			labels["token_type"] = "output"
			m.collector.RecordCounter("vision_tokens_total", float64(resp.TokensOut), labels)
		}
	}

	return resp, err
}

func (m *metricsVision) extractProvider() string {
	model := strings.ToLower(m.next.GetModel())
	switch {
	case strings.Contains(model, "gpt"):
		return "openai"
	case strings.Contains(model, "claude"):
		return "anthropic"
	case strings.Contains(model, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsVision) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsVision) SetModel(model string) { m.next.SetModel(model) }

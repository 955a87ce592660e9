package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// tracedVision wraps provider calls in OpenTelemetry spans so judging
// latency can be attributed across the resolver → judge → provider chain.
type tracedVision struct {
	next   CoreVision
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that records a span per request.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next CoreVision) CoreVision {
		return &tracedVision{next: next, tracer: tracer}
	}
}

// DoRequest executes the request within a trace span.
func (t *tracedVision) DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error) {
	ctx, span := t.tracer.Start(ctx, "vision.request",
		trace.WithAttributes(
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.prompt.length", len(req.Prompt)),
			attribute.Bool("llm.has_image", req.ImageURL != ""),
		),
	)
	defer span.End()

	resp, err := t.next.DoRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.TokensIn),
		attribute.Int("llm.tokens.output", resp.TokensOut),
	)
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedVision) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *tracedVision) SetModel(m string) { t.next.SetModel(m) }

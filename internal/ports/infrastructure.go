package ports

import (
	"context"
	"time"

	"github.com/poidh-labs/sentinel/internal/domain"
)

// CacheStore is the persistent proof-URI cache.
// Implementations hold an in-memory mirror and flush to durable storage on
// a debounce timer; Flush forces a synchronous write. Entries are keyed by
// (bounty, claim) and are idempotent, so no transactional isolation is
// needed.
type CacheStore interface {
	// Get returns the cached entry and true on a hit.
	Get(ctx context.Context, bountyID, claimID string) (domain.CacheEntry, bool, error)

	// Put records an entry. The write may be deferred until the next
	// debounced flush.
	Put(ctx context.Context, entry domain.CacheEntry) error

	// Flush writes all pending entries to durable storage.
	Flush(ctx context.Context) error

	// Close flushes pending entries and releases the store.
	Close(ctx context.Context) error
}

// VisionRequest is a single multimodal judging request.
type VisionRequest struct {
	// System is the system instruction framing the judge's responsibility.
	System string

	// Prompt is the user-visible judging instruction and rubric.
	Prompt string

	// ImageURL references the one proof image to inspect. HTTP(S) only;
	// content-addressed URIs are translated by the gateway first.
	ImageURL string

	// Temperature controls sampling randomness. Judges run low temperatures
	// to favor consistency over creativity.
	Temperature float64

	// MaxTokens bounds the response length.
	MaxTokens int
}

// VisionClient sends a prompt plus one image to a vision-capable language
// model and returns the raw response text. Implementations handle rate
// limiting, retries, and timeouts internally.
type VisionClient interface {
	// Complete performs a vision completion and returns the free-form
	// response text, which is expected (but not guaranteed) to contain a
	// fenced structured block.
	Complete(ctx context.Context, req VisionRequest) (string, error)

	// GetModel returns the model identifier, recorded in evaluations for
	// audit purposes.
	GetModel() string
}

// Gateway translates content-addressed storage locators into fetchable HTTP
// URLs and retrieves proof documents.
type Gateway interface {
	// ResolveURL converts a locator (ipfs://..., or already-HTTP) into an
	// HTTP URL.
	ResolveURL(uri string) (string, error)

	// FetchDocument retrieves the raw proof document bytes behind a locator.
	FetchDocument(ctx context.Context, uri string) ([]byte, error)
}

// MetricsCollector records operational metrics.
// Implementations integrate with Prometheus or other observability
// platforms.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)
}

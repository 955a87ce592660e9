// Package llm provides a unified client for vision-capable language model
// providers with built-in rate limiting, circuit breaking, retries,
// metrics, and tracing.
//
// The package abstracts multiple providers (OpenAI, Anthropic, Google)
// behind a common interface while adding operational concerns through a
// middleware chain. The judge never talks to a provider SDK directly; it
// sees only ports.VisionClient.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(rate.Limit(1), 10),
//	        llm.BreakerMiddleware(resilience.NewBreaker(5, time.Minute)),
//	    },
//	})
package llm

import (
	"context"
	"fmt"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// Response is a provider's answer to a vision request, with token usage
// for cost accounting.
type Response struct {
	// Text is the model's raw response text.
	Text string

	// TokensIn and TokensOut count prompt and completion tokens. Providers
	// fall back to estimation when the API omits usage data.
	TokensIn  int
	TokensOut int
}

// CoreVision is the minimal provider interface the middleware chain wraps.
type CoreVision interface {
	// DoRequest sends one vision completion request to the provider.
	DoRequest(ctx context.Context, req ports.VisionRequest) (Response, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreVision implementation with cross-cutting behavior.
type Middleware func(CoreVision) CoreVision

// ClientConfig holds the settings for building a provider client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the provider's model. Empty uses the provider default.
	Model string

	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string

	// Middleware is applied in order; the first entry is outermost.
	Middleware []Middleware
}

// Client implements ports.VisionClient over a middleware-wrapped provider.
type Client struct {
	core CoreVision
}

var _ ports.VisionClient = (*Client)(nil)

// NewClient assembles a provider and its middleware chain.
// Unknown providers and missing API keys are configuration errors, fatal
// at startup.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse so the first configured entry is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// Complete performs a vision completion and returns the raw response text.
func (c *Client) Complete(ctx context.Context, req ports.VisionRequest) (string, error) {
	resp, err := c.core.DoRequest(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteWithUsage performs a vision completion and returns token usage
// alongside the text.
func (c *Client) CompleteWithUsage(ctx context.Context, req ports.VisionRequest) (Response, error) {
	return c.core.DoRequest(ctx, req)
}

// GetModel returns the underlying provider's model name.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory builds a CoreVision from configuration.
type ProviderFactory func(ClientConfig) (CoreVision, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider under a name usable in
// ClientConfig. Called from provider init functions.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

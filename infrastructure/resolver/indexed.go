package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
)

const indexedRequestTimeout = 15 * time.Second

// IndexedLogClient queries a block-explorer-style REST API for decoded
// event logs. The API is a best-effort third party; callers guard it with
// a circuit breaker and fall back to direct chain queries.
type IndexedLogClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ ports.LogIndexClient = (*IndexedLogClient)(nil)

// NewIndexedLogClient creates a client for the given explorer base URL.
func NewIndexedLogClient(baseURL, apiKey string) *IndexedLogClient {
	return &IndexedLogClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: indexedRequestTimeout},
	}
}

// decodedEventsResponse is the explorer's response envelope.
type decodedEventsResponse struct {
	Items []ports.IndexedLogItem `json:"items"`
}

// DecodedEvents returns decoded event items for a contract address.
func (c *IndexedLogClient) DecodedEvents(ctx context.Context, contractAddress string) ([]ports.IndexedLogItem, error) {
	endpoint := fmt.Sprintf("%s/addresses/%s/logs/decoded", c.baseURL, url.PathEscape(contractAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build indexed-log request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexed-log request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("indexed-log API returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded decodedEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode indexed-log response: %w", err)
	}
	return decoded.Items, nil
}

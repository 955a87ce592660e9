// Package gateway translates content-addressed storage locators into
// HTTP-fetchable URLs and retrieves proof documents through a public
// gateway.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
)

const (
	// DefaultGatewayBase is the public CAS gateway used when none is
	// configured.
	DefaultGatewayBase = "https://ipfs.io/ipfs/"

	fetchTimeout = 30 * time.Second

	// maxDocumentBytes bounds proof document downloads. Proof documents
	// are small JSON; anything larger is abusive.
	maxDocumentBytes = 2 << 20
)

// HTTPGateway implements ports.Gateway over a CAS HTTP gateway.
type HTTPGateway struct {
	base   string
	client *http.Client
}

var _ ports.Gateway = (*HTTPGateway)(nil)

// New creates a gateway rooted at base; empty base uses the default.
func New(base string) *HTTPGateway {
	if base == "" {
		base = DefaultGatewayBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &HTTPGateway{
		base:   base,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// ResolveURL converts a locator into an HTTP URL. ipfs:// locators are
// rewritten onto the gateway; HTTP locators pass through unchanged.
func (g *HTTPGateway) ResolveURL(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return "", fmt.Errorf("empty locator")
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return uri, nil
	case strings.HasPrefix(uri, "ipfs://"):
		hash := strings.TrimPrefix(uri, "ipfs://")
		hash = strings.TrimPrefix(hash, "ipfs/")
		if hash == "" {
			return "", fmt.Errorf("ipfs locator has no hash: %s", uri)
		}
		return g.base + hash, nil
	default:
		return "", fmt.Errorf("unsupported locator scheme: %s", uri)
	}
}

// FetchDocument retrieves the raw proof document behind a locator.
func (g *HTTPGateway) FetchDocument(ctx context.Context, uri string) ([]byte, error) {
	resolved, err := g.ResolveURL(uri)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build document request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("document fetch returned %d for %s", resp.StatusCode, resolved)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}
	return body, nil
}

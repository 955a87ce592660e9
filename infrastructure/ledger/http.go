// Package ledger provides an HTTP adapter to the external ledger service
// that fronts the bounty contract. Key management and transaction signing
// live in that service; this client only consumes its API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/poidh-labs/sentinel/internal/ports"
)

const requestTimeout = 30 * time.Second

// HTTPLedger implements ports.LedgerClient against the ledger service API.
type HTTPLedger struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ ports.LedgerClient = (*HTTPLedger)(nil)

// New creates a ledger client for the given service base URL.
func New(baseURL, apiKey string) *HTTPLedger {
	return &HTTPLedger{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type claimItem struct {
	ClaimID   string `json:"claim_id"`
	Submitter string `json:"submitter"`
	CreatedAt int64  `json:"created_at"`
}

type claimsResponse struct {
	Claims []claimItem `json:"claims"`
}

// GetClaimsForBounty lists the claims recorded against a bounty.
func (l *HTTPLedger) GetClaimsForBounty(ctx context.Context, bountyID string) ([]ports.ClaimRef, error) {
	var decoded claimsResponse
	path := fmt.Sprintf("/bounties/%s/claims", url.PathEscape(bountyID))
	if err := l.get(ctx, path, &decoded); err != nil {
		return nil, err
	}

	refs := make([]ports.ClaimRef, len(decoded.Claims))
	for i, c := range decoded.Claims {
		refs[i] = ports.ClaimRef{
			ClaimID:   c.ClaimID,
			Submitter: c.Submitter,
			CreatedAt: time.Unix(c.CreatedAt, 0).UTC(),
		}
	}
	return refs, nil
}

type acceptResponse struct {
	TxHash string `json:"tx_hash"`
}

// AcceptClaim triggers payout for a claim. The ledger service signs and
// submits the transaction; the returned hash is recorded for audit.
func (l *HTTPLedger) AcceptClaim(ctx context.Context, bountyID, claimID string) (string, error) {
	path := fmt.Sprintf("/bounties/%s/claims/%s/accept", url.PathEscape(bountyID), url.PathEscape(claimID))

	req, err := l.newRequest(ctx, http.MethodPost, path, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var decoded acceptResponse
	if err := l.do(req, &decoded); err != nil {
		return "", fmt.Errorf("accept claim %s/%s: %w", bountyID, claimID, err)
	}
	if decoded.TxHash == "" {
		return "", fmt.Errorf("accept claim %s/%s: ledger returned no transaction hash", bountyID, claimID)
	}
	return decoded.TxHash, nil
}

type headResponse struct {
	BlockNumber uint64 `json:"block_number"`
}

// BlockNumber returns the current chain head.
func (l *HTTPLedger) BlockNumber(ctx context.Context) (uint64, error) {
	var decoded headResponse
	if err := l.get(ctx, "/chain/head", &decoded); err != nil {
		return 0, err
	}
	return decoded.BlockNumber, nil
}

type logsResponse struct {
	Logs []ports.LogEntry `json:"logs"`
}

// FilterLogs queries raw event logs in a block window.
func (l *HTTPLedger) FilterLogs(ctx context.Context, filter ports.LogFilter) ([]ports.LogEntry, error) {
	q := url.Values{}
	q.Set("address", filter.Address)
	q.Set("topic", filter.Topic)
	q.Set("from_block", fmt.Sprintf("%d", filter.FromBlock))
	q.Set("to_block", fmt.Sprintf("%d", filter.ToBlock))

	var decoded logsResponse
	if err := l.get(ctx, "/chain/logs?"+q.Encode(), &decoded); err != nil {
		return nil, err
	}
	return decoded.Logs, nil
}

func (l *HTTPLedger) get(ctx context.Context, path string, out any) error {
	req, err := l.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return l.do(req, out)
}

func (l *HTTPLedger) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	if l.apiKey != "" {
		req.Header.Set("X-API-Key", l.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (l *HTTPLedger) do(req *http.Request, out any) error {
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ledger service returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Package ports defines the interfaces between the verification core and its
// external collaborators: the on-chain ledger, the indexed-log API, the
// content gateway, the vision LLM provider, and the persistent proof cache.
// Implementations live in infrastructure packages or outside this module.
package ports

import (
	"context"
	"time"
)

// ClaimRef is one on-chain claim against a bounty, as reported by the ledger.
type ClaimRef struct {
	ClaimID   string
	Submitter string
	CreatedAt time.Time
}

// LogEntry is a raw event-log record returned by the chain node.
type LogEntry struct {
	// Address is the emitting contract.
	Address string `json:"address"`

	// Topics are the indexed event fields; Topics[0] is the event signature.
	Topics []string `json:"topics"`

	// Data is the ABI-encoded non-indexed payload, hex encoded.
	Data string `json:"data"`

	// BlockNumber is the block the event was included in.
	BlockNumber uint64 `json:"block_number"`
}

// LogFilter bounds a direct chain-log query. Full-chain scans are
// prohibitively slow, so FromBlock/ToBlock must describe a recent window.
type LogFilter struct {
	Address   string
	Topic     string
	FromBlock uint64
	ToBlock   uint64
}

// LedgerClient is the black-box on-chain contract client.
// Payouts are irreversible; AcceptClaim must only be called once the engine
// has produced a valid verdict.
type LedgerClient interface {
	// GetClaimsForBounty lists the claims recorded against a bounty.
	GetClaimsForBounty(ctx context.Context, bountyID string) ([]ClaimRef, error)

	// AcceptClaim triggers payout for a claim and returns the transaction
	// hash.
	AcceptClaim(ctx context.Context, bountyID, claimID string) (string, error)

	// BlockNumber returns the current chain head, used to bound log windows.
	BlockNumber(ctx context.Context) (uint64, error)

	// FilterLogs queries raw event logs. Used by the resolver's direct
	// chain-log strategy.
	FilterLogs(ctx context.Context, filter LogFilter) ([]LogEntry, error)
}

// IndexedLogParam is one named, typed parameter of a decoded event.
type IndexedLogParam struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IndexedLogItem is one decoded event from the block-explorer-style API.
type IndexedLogItem struct {
	Method string            `json:"method"`
	Params []IndexedLogParam `json:"params"`
}

// LogIndexClient queries a third-party indexed-log API for decoded events.
// The API is unreliable; callers guard it with a circuit breaker.
type LogIndexClient interface {
	// DecodedEvents returns decoded event items for a contract address.
	DecodedEvents(ctx context.Context, contractAddress string) ([]IndexedLogItem, error)
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// WinnerSelection is the final outcome for a completed bounty.
// Its Rationale string is persisted verbatim by the external audit log,
// so its composed structure is part of the contract.
type WinnerSelection struct {
	// ID uniquely identifies this selection.
	ID string `json:"id"`

	// BountyID is the bounty this selection concludes.
	BountyID string `json:"bounty_id"`

	// Winner is the submission chosen for payout.
	Winner *Submission `json:"winner"`

	// RunnersUp lists the remaining valid submissions in descending score
	// order.
	RunnersUp []*Submission `json:"runners_up,omitempty"`

	// Method records which selection mode produced this result.
	Method SelectionMode `json:"method"`

	// Rationale is the composed audit explanation.
	Rationale string `json:"rationale"`

	// SelectedAt is when the selection was made.
	SelectedAt time.Time `json:"selected_at"`

	// Autonomous is always true for this agent; no human approved the payout.
	Autonomous bool `json:"autonomous"`
}

// NewWinnerSelection creates a selection with a fresh ID and the autonomy
// flag set.
func NewWinnerSelection(bountyID string, winner *Submission, runnersUp []*Submission, method SelectionMode, rationale string) *WinnerSelection {
	return &WinnerSelection{
		ID:         uuid.NewString(),
		BountyID:   bountyID,
		Winner:     winner,
		RunnersUp:  runnersUp,
		Method:     method,
		Rationale:  rationale,
		SelectedAt: time.Now().UTC(),
		Autonomous: true,
	}
}

// ResolutionSource tags which strategy produced a proof-URI resolution.
type ResolutionSource string

const (
	SourceCache    ResolutionSource = "cache"
	SourceIndexLog ResolutionSource = "indexed-log"
	SourceChainLog ResolutionSource = "chain-log"
	SourceNone     ResolutionSource = "none"
)

// Resolution is the outcome of resolving one claim's proof locator.
// A failed resolution is a value, never a panic or a crossing error:
// callers treat it as "content unavailable" and fail validation gracefully.
type Resolution struct {
	Success   bool             `json:"success"`
	URI       string           `json:"uri,omitempty"`
	Source    ResolutionSource `json:"source"`
	FetchTime time.Duration    `json:"fetch_time"`
	Err       string           `json:"error,omitempty"`
}

// CacheEntry is one persisted proof-URI resolution, keyed by
// (bounty, claim). Entries are append-only and never expire: proof URIs
// are immutable once the claim exists on-chain.
type CacheEntry struct {
	BountyID  string           `json:"bounty_id"`
	ClaimID   string           `json:"claim_id"`
	URI       string           `json:"uri"`
	Source    ResolutionSource `json:"source"`
	FetchedAt int64            `json:"fetched_at"`

	// Integrity is a tamper-evidence tag for audit display. It is not
	// cryptographically binding.
	Integrity string `json:"integrity"`
}

// IntegrityTag derives the audit tag for a cache entry from the resolved
// locator, its key, and the contract it came from.
func IntegrityTag(uri, claimID, bountyID, contractAddress string) string {
	sum := sha256.Sum256([]byte(uri + "|" + claimID + "|" + bountyID + "|" + contractAddress))
	return hex.EncodeToString(sum[:8])
}

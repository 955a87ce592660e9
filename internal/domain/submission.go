package domain

import "time"

// ExifData is the embedded photo metadata extracted from proof content.
// Any field may be absent; checks that need a missing field fail rather
// than exempt themselves.
type ExifData struct {
	// Timestamp is the capture time, zero if the proof carried none.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Latitude and Longitude are GPS coordinates in decimal degrees.
	// They are pointers because 0,0 is a valid coordinate.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Device is the camera or device identifier string.
	Device string `json:"device,omitempty"`
}

// HasGPS reports whether both coordinates are present.
func (e *ExifData) HasGPS() bool {
	return e != nil && e.Latitude != nil && e.Longitude != nil
}

// ProofContent is the decoded off-chain document a claim points to.
type ProofContent struct {
	// Type is the detected content kind (photo, video, text).
	Type ProofType `json:"type"`

	// MediaURI locates the image or video payload, empty for text proofs.
	MediaURI string `json:"media_uri,omitempty"`

	// Description is the submitter's free-text account of the proof.
	Description string `json:"description,omitempty"`

	// Exif holds embedded photo metadata when present.
	Exif *ExifData `json:"exif,omitempty"`

	// Metadata carries any additional fields the proof document included.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckResult records the outcome of a single deterministic check.
// The full ordered list is part of the audit contract and must always be
// emitted, pass or fail.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ValidationResult is the deterministic validator's verdict for one
// submission. It is set at most once per submission.
type ValidationResult struct {
	Valid   bool          `json:"valid"`
	Score   int           `json:"score"`
	Checks  []CheckResult `json:"checks"`
	Summary string        `json:"summary"`
}

// AIEvaluation is the vision-LLM judge's verdict for one submission.
type AIEvaluation struct {
	// Score is the judge's 0-100 rating.
	Score float64 `json:"score"`

	// Valid is the judge's overall pass/fail decision.
	Valid bool `json:"valid"`

	// Reasoning is the judge's free-text explanation.
	Reasoning string `json:"reasoning"`

	// Confidence is the judge's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Model identifies which model produced the evaluation.
	Model string `json:"model"`

	// EvaluatedAt is the epoch second the evaluation completed.
	EvaluatedAt int64 `json:"evaluated_at"`
}

// Submission tracks one on-chain claim through its evaluation lifecycle.
// Fields accumulate as the claim is observed, resolved, parsed, and judged;
// the submission becomes immutable once a winner is finalized.
type Submission struct {
	ID        string    `json:"id"`
	BountyID  string    `json:"bounty_id"`
	ClaimID   string    `json:"claim_id"`
	Submitter string    `json:"submitter"`
	CreatedAt time.Time `json:"created_at"`

	// ProofURI is the on-chain proof locator. It stays empty if resolution
	// exhausted every strategy; downstream validation then fails gracefully.
	ProofURI string `json:"proof_uri,omitempty"`

	// Content is the decoded proof document, nil until parsed.
	Content *ProofContent `json:"content,omitempty"`

	// Validation is set once by the deterministic validator.
	Validation *ValidationResult `json:"validation,omitempty"`

	// AIEvaluation is set at most once per evaluation pass by the judge.
	AIEvaluation *AIEvaluation `json:"ai_evaluation,omitempty"`
}

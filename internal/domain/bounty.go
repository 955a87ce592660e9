// Package domain defines the core types for autonomous bounty verification:
// bounty criteria, submissions with their accumulated evaluation results,
// resolved proof content, and winner selections.
package domain

// SelectionMode determines how a bounty picks its winner.
// Exactly one mode governs a bounty for its whole lifetime.
type SelectionMode string

const (
	// SelectionFirstValid pays the first submission that passes validation.
	SelectionFirstValid SelectionMode = "first_valid"

	// SelectionAIJudged collects submissions until the deadline, then ranks
	// them with a vision-LLM judge and pays the highest-scoring valid entry.
	SelectionAIJudged SelectionMode = "ai_judged"

	// SelectionCommunityVote is reserved for upstream protocol compatibility.
	// It is not implemented by this agent and is rejected at evaluation time.
	SelectionCommunityVote SelectionMode = "community_vote"
)

// ProofType classifies the kind of proof content a bounty expects.
type ProofType string

const (
	ProofTypePhoto ProofType = "photo"
	ProofTypeVideo ProofType = "video"
	ProofTypeText  ProofType = "text"
	ProofTypeAny   ProofType = "any"
)

// LocationRule requires the proof's GPS coordinates to fall within a radius
// of a target point.
type LocationRule struct {
	// Latitude of the required point, in decimal degrees.
	Latitude float64 `json:"latitude" yaml:"latitude"`

	// Longitude of the required point, in decimal degrees.
	Longitude float64 `json:"longitude" yaml:"longitude"`

	// RadiusMeters is the maximum allowed great-circle distance from the
	// required point.
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`

	// Label is a human-readable name for the location, used in check details.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// TimeWindowRule requires the proof's timestamp to fall inside an inclusive
// window of epoch seconds.
type TimeWindowRule struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

// ValidationRules are the optional, independently combinable deterministic
// requirements for a bounty. A nil or zero field means the rule is not
// active and does not contribute to scoring.
type ValidationRules struct {
	// Location, when set, activates the GPS distance check.
	Location *LocationRule `json:"location,omitempty" yaml:"location,omitempty"`

	// TimeWindow, when set, activates the capture-time window check.
	TimeWindow *TimeWindowRule `json:"time_window,omitempty" yaml:"time_window,omitempty"`

	// RequiredKeywords must all appear (case-insensitively) in the
	// submission's description or metadata.
	RequiredKeywords []string `json:"required_keywords,omitempty" yaml:"required_keywords,omitempty"`

	// RequireExif demands embedded photo metadata with a timestamp.
	RequireExif bool `json:"require_exif,omitempty" yaml:"require_exif,omitempty"`

	// MaxAgeMinutes, when positive, limits how old the proof may be at
	// evaluation time.
	MaxAgeMinutes int `json:"max_age_minutes,omitempty" yaml:"max_age_minutes,omitempty"`

	// RejectScreenshots activates the (weak, heuristic) screenshot check.
	RejectScreenshots bool `json:"reject_screenshots,omitempty" yaml:"reject_screenshots,omitempty"`

	// AIRubric is free-text judging guidance. In first-valid mode a non-empty
	// rubric adds an AI veto after deterministic validation.
	AIRubric string `json:"ai_rubric,omitempty" yaml:"ai_rubric,omitempty"`
}

// BountyCriteria is the immutable configuration of a bounty, fixed when the
// bounty is created.
type BountyCriteria struct {
	Mode  SelectionMode   `json:"mode" yaml:"mode"`
	Proof ProofType       `json:"proof" yaml:"proof"`
	Rules ValidationRules `json:"rules" yaml:"rules"`

	// Reward is the on-chain reward amount in the chain's smallest unit,
	// kept as a decimal string to avoid precision loss.
	Reward string `json:"reward" yaml:"reward"`

	// Deadline is the epoch second after which no new claims are accepted.
	Deadline int64 `json:"deadline" yaml:"deadline"`
}

// Bounty pairs an on-chain bounty identity with its criteria.
type Bounty struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Criteria    BountyCriteria `json:"criteria"`
}

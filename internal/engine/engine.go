// Package engine orchestrates submission evaluation and winner selection.
//
// The engine is the decision core: it applies the bounty's selection mode to
// the submissions recorded for it, delegating deterministic checking and AI
// judging to injected collaborators. It holds no network or storage concerns.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/ports"
)

// Validator runs the deterministic check battery.
type Validator interface {
	Validate(sub *domain.Submission, criteria domain.BountyCriteria) domain.ValidationResult
}

// AIJudge evaluates submissions with a vision model.
type AIJudge interface {
	Evaluate(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) domain.AIEvaluation
	EvaluateAndRank(ctx context.Context, bounty *domain.Bounty, subs []*domain.Submission) []*domain.Submission
}

// Verdict is the outcome of evaluating a single submission in first-valid
// mode.
type Verdict struct {
	// Accept means the submission won and the payout should fire.
	Accept bool

	// Rationale is the composed audit explanation for the decision.
	Rationale string
}

// Engine applies selection modes to recorded submissions.
type Engine struct {
	validator Validator
	judge     AIJudge
	metrics   ports.MetricsCollector

	mu sync.Mutex
	// submissions holds each bounty's submissions in arrival order. Arrival
	// order is the tie-break for equal AI scores, so order is load-bearing.
	submissions map[string][]*domain.Submission
	seen        map[string]map[string]bool
}

// New creates an engine. The judge may be nil only if no bounty uses AI
// judging or rubrics; passing it is the safe default.
func New(validator Validator, judge AIJudge, metrics ports.MetricsCollector) (*Engine, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: engine requires a validator", domain.ErrInvalidConfiguration)
	}
	return &Engine{
		validator:   validator,
		judge:       judge,
		metrics:     metrics,
		submissions: make(map[string][]*domain.Submission),
		seen:        make(map[string]map[string]bool),
	}, nil
}

// Record stores a submission for its bounty, preserving arrival order.
// Duplicate claim IDs are ignored; the first observation wins.
func (e *Engine) Record(sub *domain.Submission) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	claims := e.seen[sub.BountyID]
	if claims == nil {
		claims = make(map[string]bool)
		e.seen[sub.BountyID] = claims
	}
	if claims[sub.ClaimID] {
		return false
	}
	claims[sub.ClaimID] = true
	e.submissions[sub.BountyID] = append(e.submissions[sub.BountyID], sub)
	return true
}

// Submissions returns the bounty's recorded submissions in arrival order.
func (e *Engine) Submissions(bountyID string) []*domain.Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.submissions[bountyID]
	out := make([]*domain.Submission, len(subs))
	copy(out, subs)
	return out
}

// EvaluateSubmission decides one submission in first-valid mode: the
// deterministic validator gates, and when the bounty carries an AI rubric the
// judge holds a veto over submissions that passed the checks.
func (e *Engine) EvaluateSubmission(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) (Verdict, error) {
	switch bounty.Criteria.Mode {
	case domain.SelectionFirstValid:
	case domain.SelectionCommunityVote:
		return Verdict{}, fmt.Errorf("%w: community vote", domain.ErrUnsupportedMode)
	default:
		return Verdict{}, fmt.Errorf("%w: %s does not evaluate submissions individually", domain.ErrUnsupportedMode, bounty.Criteria.Mode)
	}

	result := e.validator.Validate(sub, bounty.Criteria)
	sub.Validation = &result
	e.count("validations_total", result.Valid)

	if !result.Valid {
		return Verdict{
			Accept:    false,
			Rationale: composeValidationRationale(result),
		}, nil
	}

	if rubric := strings.TrimSpace(bounty.Criteria.Rules.AIRubric); rubric != "" {
		if e.judge == nil {
			return Verdict{}, fmt.Errorf("%w: bounty %s has an AI rubric but no judge is configured", domain.ErrInvalidConfiguration, bounty.ID)
		}
		eval := e.judge.Evaluate(ctx, bounty, sub)
		sub.AIEvaluation = &eval
		e.count("ai_vetoes_total", !eval.Valid)

		if !eval.Valid {
			return Verdict{
				Accept: false,
				Rationale: fmt.Sprintf("%s; AI veto (model %s, score %.0f, confidence %.2f): %s",
					composeValidationRationale(result), eval.Model, eval.Score, eval.Confidence, eval.Reasoning),
			}, nil
		}
		return Verdict{
			Accept: true,
			Rationale: fmt.Sprintf("%s; AI confirmed (model %s, score %.0f, confidence %.2f)",
				composeValidationRationale(result), eval.Model, eval.Score, eval.Confidence),
		}, nil
	}

	return Verdict{Accept: true, Rationale: composeValidationRationale(result)}, nil
}

// SelectWinner concludes an AI-judged bounty: every recorded submission is
// ranked by the judge, invalid entries are filtered, and the highest-scoring
// survivor wins with arrival order breaking score ties. A nil selection with
// a nil error means no submission qualified; the bounty stays open for its
// creator to resolve manually.
func (e *Engine) SelectWinner(ctx context.Context, bounty *domain.Bounty) (*domain.WinnerSelection, error) {
	switch bounty.Criteria.Mode {
	case domain.SelectionAIJudged:
	case domain.SelectionCommunityVote:
		return nil, fmt.Errorf("%w: community vote", domain.ErrUnsupportedMode)
	case domain.SelectionFirstValid:
		return e.selectFirstValid(ctx, bounty)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedMode, bounty.Criteria.Mode)
	}

	if e.judge == nil {
		return nil, fmt.Errorf("%w: AI-judged bounty %s has no judge configured", domain.ErrInvalidConfiguration, bounty.ID)
	}

	subs := e.Submissions(bounty.ID)
	if len(subs) == 0 {
		return nil, nil
	}

	ranked := e.judge.EvaluateAndRank(ctx, bounty, subs)

	var valid []*domain.Submission
	for _, sub := range ranked {
		if sub.AIEvaluation != nil && sub.AIEvaluation.Valid {
			valid = append(valid, sub)
		}
	}
	e.count("winner_selections_total", len(valid) > 0)
	if len(valid) == 0 {
		return nil, nil
	}

	winner := valid[0]
	runnersUp := valid[1:]
	rationale := composeSelectionRationale(winner, runnersUp, len(valid))

	return domain.NewWinnerSelection(bounty.ID, winner, runnersUp, domain.SelectionAIJudged, rationale), nil
}

// selectFirstValid replays recorded submissions in arrival order and picks
// the first that passes evaluation. The monitor normally decides first-valid
// bounties claim-by-claim as they arrive; this path covers catch-up after a
// restart.
func (e *Engine) selectFirstValid(ctx context.Context, bounty *domain.Bounty) (*domain.WinnerSelection, error) {
	subs := e.Submissions(bounty.ID)
	if len(subs) == 0 {
		return nil, nil
	}

	for _, sub := range subs {
		verdict, err := e.EvaluateSubmission(ctx, bounty, sub)
		if err != nil {
			return nil, err
		}
		if verdict.Accept {
			return domain.NewWinnerSelection(bounty.ID, sub, nil, domain.SelectionFirstValid, verdict.Rationale), nil
		}
	}
	return nil, nil
}

// composeValidationRationale renders the validator verdict with its full
// check breakdown. The format is audit-stable.
func composeValidationRationale(result domain.ValidationResult) string {
	var b strings.Builder
	b.WriteString(result.Summary)
	for _, check := range result.Checks {
		status := "pass"
		if !check.Passed {
			status = "fail"
		}
		fmt.Fprintf(&b, " [%s=%s: %s]", check.Name, status, check.Detail)
	}
	return b.String()
}

// composeSelectionRationale renders the AI-judged winner decision: the
// winner's verdict in full, the competing valid-submission count, and
// abbreviated runner-up scores.
func composeSelectionRationale(winner *domain.Submission, runnersUp []*domain.Submission, validCount int) string {
	eval := winner.AIEvaluation
	var b strings.Builder
	fmt.Fprintf(&b, "selected claim %s (submitter %s) with score %.0f/100, confidence %.2f, model %s, from %d valid submission(s)",
		winner.ClaimID, winner.Submitter, eval.Score, eval.Confidence, eval.Model, validCount)
	fmt.Fprintf(&b, "; reasoning: %s", eval.Reasoning)

	if len(runnersUp) > 0 {
		scores := make([]string, len(runnersUp))
		for i, ru := range runnersUp {
			scores[i] = fmt.Sprintf("%s=%.0f", ru.ClaimID, ru.AIEvaluation.Score)
		}
		fmt.Fprintf(&b, "; runners-up: %s", strings.Join(scores, ", "))
	}
	return b.String()
}

func (e *Engine) count(metric string, success bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordCounter(metric, 1, map[string]string{"outcome": fmt.Sprintf("%t", success)})
}

// Forget drops a bounty's recorded submissions once it is concluded, so the
// engine's memory does not grow without bound over a long-lived process.
func (e *Engine) Forget(bountyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.submissions, bountyID)
	delete(e.seen, bountyID)
}

package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poidh-labs/sentinel/internal/domain"
)

// fakeValidator returns scripted results keyed by claim ID.
type fakeValidator struct {
	results map[string]domain.ValidationResult
}

func (f *fakeValidator) Validate(sub *domain.Submission, _ domain.BountyCriteria) domain.ValidationResult {
	if r, ok := f.results[sub.ClaimID]; ok {
		return r
	}
	return domain.ValidationResult{Valid: true, Score: 100, Summary: "8/8 checks passed, score 100/100"}
}

// fakeJudge returns scripted evaluations keyed by claim ID and ranks by
// score descending, arrival order preserved for ties.
type fakeJudge struct {
	evals map[string]domain.AIEvaluation
	calls int
}

func (f *fakeJudge) Evaluate(_ context.Context, _ *domain.Bounty, sub *domain.Submission) domain.AIEvaluation {
	f.calls++
	if e, ok := f.evals[sub.ClaimID]; ok {
		return e
	}
	return domain.AIEvaluation{Score: 50, Valid: true, Confidence: 0.5, Model: "fake"}
}

func (f *fakeJudge) EvaluateAndRank(ctx context.Context, bounty *domain.Bounty, subs []*domain.Submission) []*domain.Submission {
	for _, sub := range subs {
		eval := f.Evaluate(ctx, bounty, sub)
		sub.AIEvaluation = &eval
	}
	ranked := make([]*domain.Submission, len(subs))
	copy(ranked, subs)
	// Insertion sort keeps the fake's tie behavior identical to production.
	for i := 1; i < len(ranked); i++ {
		for k := i; k > 0 && ranked[k].AIEvaluation.Score > ranked[k-1].AIEvaluation.Score; k-- {
			ranked[k], ranked[k-1] = ranked[k-1], ranked[k]
		}
	}
	return ranked
}

func eval(score float64, valid bool) domain.AIEvaluation {
	return domain.AIEvaluation{
		Score: score, Valid: valid, Confidence: 0.8,
		Reasoning: fmt.Sprintf("scored %g", score), Model: "fake",
	}
}

func sub(bountyID, claimID string, arrival time.Time) *domain.Submission {
	return &domain.Submission{
		ID:        bountyID + "/" + claimID,
		BountyID:  bountyID,
		ClaimID:   claimID,
		Submitter: "0x" + claimID,
		CreatedAt: arrival,
	}
}

func firstValidBounty(rubric string) *domain.Bounty {
	return &domain.Bounty{
		ID:    "b1",
		Title: "Pier sunrise",
		Criteria: domain.BountyCriteria{
			Mode:  domain.SelectionFirstValid,
			Rules: domain.ValidationRules{AIRubric: rubric},
		},
	}
}

func aiJudgedBounty() *domain.Bounty {
	return &domain.Bounty{
		ID:    "b2",
		Title: "Best pier photo",
		Criteria: domain.BountyCriteria{
			Mode:     domain.SelectionAIJudged,
			Deadline: time.Now().Add(-time.Hour).Unix(),
		},
	}
}

func newEngine(t *testing.T, v Validator, j AIJudge) *Engine {
	t.Helper()
	e, err := New(v, j, nil)
	require.NoError(t, err)
	return e
}

// TestRecord_DeduplicatesAndPreservesOrder verifies arrival order storage
// and claim-level dedup.
func TestRecord_DeduplicatesAndPreservesOrder(t *testing.T) {
	e := newEngine(t, &fakeValidator{}, nil)
	base := time.Now()

	assert.True(t, e.Record(sub("b1", "c1", base)))
	assert.True(t, e.Record(sub("b1", "c2", base.Add(time.Second))))
	assert.False(t, e.Record(sub("b1", "c1", base.Add(time.Minute))), "duplicate claim ignored")

	subs := e.Submissions("b1")
	require.Len(t, subs, 2)
	assert.Equal(t, "c1", subs[0].ClaimID)
	assert.Equal(t, "c2", subs[1].ClaimID)
}

// TestEvaluateSubmission_ValidatorGate verifies a passing validation with
// no rubric accepts, and the rationale embeds the check breakdown.
func TestEvaluateSubmission_ValidatorGate(t *testing.T) {
	v := &fakeValidator{results: map[string]domain.ValidationResult{
		"c1": {
			Valid: true, Score: 100,
			Checks:  []domain.CheckResult{{Name: "proof_content", Passed: true, Detail: "present"}},
			Summary: "1/1 checks passed, score 100/100",
		},
	}}
	e := newEngine(t, v, nil)

	s := sub("b1", "c1", time.Now())
	verdict, err := e.EvaluateSubmission(context.Background(), firstValidBounty(""), s)
	require.NoError(t, err)

	assert.True(t, verdict.Accept)
	assert.Contains(t, verdict.Rationale, "1/1 checks passed")
	assert.Contains(t, verdict.Rationale, "[proof_content=pass: present]")
	require.NotNil(t, s.Validation)
	assert.Equal(t, 100, s.Validation.Score)
}

// TestEvaluateSubmission_RejectsInvalid verifies a failed validation rejects
// without consulting the judge even when a rubric exists.
func TestEvaluateSubmission_RejectsInvalid(t *testing.T) {
	v := &fakeValidator{results: map[string]domain.ValidationResult{
		"c1": {Valid: false, Score: 30, Summary: "2/8 checks passed, score 30/100"},
	}}
	j := &fakeJudge{}
	e := newEngine(t, v, j)

	verdict, err := e.EvaluateSubmission(context.Background(), firstValidBounty("judge hard"), sub("b1", "c1", time.Now()))
	require.NoError(t, err)

	assert.False(t, verdict.Accept)
	assert.Zero(t, j.calls, "judge must not run for invalid submissions")
}

// TestEvaluateSubmission_AIVeto verifies a rubric-bearing bounty lets the
// judge overturn a deterministic pass.
func TestEvaluateSubmission_AIVeto(t *testing.T) {
	j := &fakeJudge{evals: map[string]domain.AIEvaluation{
		"c1": {Score: 20, Valid: false, Confidence: 0.9, Reasoning: "does not match rubric", Model: "fake"},
	}}
	e := newEngine(t, &fakeValidator{}, j)

	s := sub("b1", "c1", time.Now())
	verdict, err := e.EvaluateSubmission(context.Background(), firstValidBounty("match the rubric"), s)
	require.NoError(t, err)

	assert.False(t, verdict.Accept)
	assert.Contains(t, verdict.Rationale, "AI veto")
	assert.Contains(t, verdict.Rationale, "does not match rubric")
	assert.NotNil(t, s.AIEvaluation)
}

// TestEvaluateSubmission_NoRubricSkipsJudge verifies the judge is not
// consulted when the bounty has no rubric.
func TestEvaluateSubmission_NoRubricSkipsJudge(t *testing.T) {
	j := &fakeJudge{}
	e := newEngine(t, &fakeValidator{}, j)

	verdict, err := e.EvaluateSubmission(context.Background(), firstValidBounty(""), sub("b1", "c1", time.Now()))
	require.NoError(t, err)

	assert.True(t, verdict.Accept)
	assert.Zero(t, j.calls)
}

// TestEvaluateSubmission_CommunityVoteRejected verifies the unsupported mode
// surfaces as a configuration-class error.
func TestEvaluateSubmission_CommunityVoteRejected(t *testing.T) {
	e := newEngine(t, &fakeValidator{}, nil)
	bounty := firstValidBounty("")
	bounty.Criteria.Mode = domain.SelectionCommunityVote

	_, err := e.EvaluateSubmission(context.Background(), bounty, sub("b1", "c1", time.Now()))
	assert.ErrorIs(t, err, domain.ErrUnsupportedMode)
}

// TestSelectWinner_HighestValidWins verifies ranking, invalid filtering, and
// the audit rationale contents.
func TestSelectWinner_HighestValidWins(t *testing.T) {
	j := &fakeJudge{evals: map[string]domain.AIEvaluation{
		"c1": eval(72, true),
		"c2": eval(85, true),
		"c3": eval(95, false), // highest score but invalid
	}}
	e := newEngine(t, &fakeValidator{}, j)

	bounty := aiJudgedBounty()
	base := time.Now()
	e.Record(sub("b2", "c1", base))
	e.Record(sub("b2", "c2", base.Add(time.Second)))
	e.Record(sub("b2", "c3", base.Add(2*time.Second)))

	selection, err := e.SelectWinner(context.Background(), bounty)
	require.NoError(t, err)
	require.NotNil(t, selection)

	assert.Equal(t, "c2", selection.Winner.ClaimID)
	assert.Equal(t, domain.SelectionAIJudged, selection.Method)
	assert.True(t, selection.Autonomous)
	require.Len(t, selection.RunnersUp, 1)
	assert.Equal(t, "c1", selection.RunnersUp[0].ClaimID)

	assert.Contains(t, selection.Rationale, "score 85/100")
	assert.Contains(t, selection.Rationale, "from 2 valid submission(s)", "invalid submissions do not count as competitors")
	assert.Contains(t, selection.Rationale, "model fake")
	assert.Contains(t, selection.Rationale, "runners-up: c1=72")
}

// TestSelectWinner_ArrivalTieBreak verifies equal scores fall back to
// arrival order.
func TestSelectWinner_ArrivalTieBreak(t *testing.T) {
	j := &fakeJudge{evals: map[string]domain.AIEvaluation{
		"early": eval(85, true),
		"late":  eval(85, true),
	}}
	e := newEngine(t, &fakeValidator{}, j)

	base := time.Now()
	e.Record(sub("b2", "early", base))
	e.Record(sub("b2", "late", base.Add(time.Second)))

	selection, err := e.SelectWinner(context.Background(), aiJudgedBounty())
	require.NoError(t, err)
	require.NotNil(t, selection)
	assert.Equal(t, "early", selection.Winner.ClaimID)
}

// TestSelectWinner_EmptyAndAllInvalid verifies both no-winner shapes return
// a nil selection with no error.
func TestSelectWinner_EmptyAndAllInvalid(t *testing.T) {
	j := &fakeJudge{evals: map[string]domain.AIEvaluation{"c1": eval(95, false)}}
	e := newEngine(t, &fakeValidator{}, j)

	selection, err := e.SelectWinner(context.Background(), aiJudgedBounty())
	require.NoError(t, err)
	assert.Nil(t, selection, "no submissions")

	e.Record(sub("b2", "c1", time.Now()))
	selection, err = e.SelectWinner(context.Background(), aiJudgedBounty())
	require.NoError(t, err)
	assert.Nil(t, selection, "all submissions invalid")
}

// TestSelectWinner_FirstValidReplay verifies catch-up selection picks the
// earliest accepted submission.
func TestSelectWinner_FirstValidReplay(t *testing.T) {
	v := &fakeValidator{results: map[string]domain.ValidationResult{
		"c1": {Valid: false, Score: 20, Summary: "rejected"},
		"c2": {Valid: true, Score: 90, Summary: "accepted"},
		"c3": {Valid: true, Score: 100, Summary: "accepted"},
	}}
	e := newEngine(t, v, nil)

	bounty := firstValidBounty("")
	base := time.Now()
	e.Record(sub("b1", "c1", base))
	e.Record(sub("b1", "c2", base.Add(time.Second)))
	e.Record(sub("b1", "c3", base.Add(2*time.Second)))

	selection, err := e.SelectWinner(context.Background(), bounty)
	require.NoError(t, err)
	require.NotNil(t, selection)
	assert.Equal(t, "c2", selection.Winner.ClaimID, "first valid wins, not best")
	assert.Equal(t, domain.SelectionFirstValid, selection.Method)
}

// TestForget releases a concluded bounty's state.
func TestForget(t *testing.T) {
	e := newEngine(t, &fakeValidator{}, nil)
	e.Record(sub("b1", "c1", time.Now()))
	e.Forget("b1")

	assert.Empty(t, e.Submissions("b1"))
	assert.True(t, e.Record(sub("b1", "c1", time.Now())), "claims are recordable again")
}

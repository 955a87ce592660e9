// Package judge evaluates proof submissions with a vision-capable language
// model and ranks competing submissions for winner selection.
//
// The judge's verdict authorizes an irreversible on-chain payment, so the
// package is deliberately conservative: unresolvable images produce a
// confident rejection rather than a guess, and unparseable model output
// degrades to an invalid evaluation carrying the raw text.
package judge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/poidh-labs/sentinel/infrastructure/llm"
	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

// isRetryableJudgeError defers to the provider error taxonomy: rate limits,
// server errors, and timeouts retry; auth and request errors fail fast.
func isRetryableJudgeError(err error) bool {
	return llm.IsRetryableError(err)
}

const (
	// judgeTemperature favors consistent verdicts over creative ones.
	judgeTemperature = 0.1

	judgeMaxTokens = 1024

	// Retry settings for the model call. Only retryable provider errors are
	// retried; a breaker-open error short-circuits immediately.
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second

	// defaultRankSpacing paces sequential evaluations during ranking so a
	// large submission set does not burst the provider.
	defaultRankSpacing = time.Second
)

const systemPrompt = `You are the final reviewer for an autonomous bounty platform. Your verdict directly triggers an irreversible cryptocurrency payment to the submitter; there is no human appeal step.

Judge strictly. If the image appears AI-generated, synthetically composited, or otherwise manipulated, mark the submission invalid regardless of how well it matches the requirements, and describe the concern.`

// Judge runs vision-model evaluations over submissions.
type Judge struct {
	client  ports.VisionClient
	gateway ports.Gateway
	breaker *resilience.Breaker
	policy  resilience.Policy
	metrics ports.MetricsCollector
	spacing time.Duration
	now     func() time.Time
}

// Option configures a Judge.
type Option func(*Judge)

// WithRankSpacing overrides the delay between sequential ranking
// evaluations. Tests use zero.
func WithRankSpacing(d time.Duration) Option {
	return func(j *Judge) { j.spacing = d }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(j *Judge) { j.metrics = m }
}

// WithClock overrides the evaluation timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Judge) { j.now = now }
}

// New creates a judge. The breaker is injected so production wiring shares
// one breaker across every model consumer; pass nil to get a private one.
func New(client ports.VisionClient, gw ports.Gateway, breaker *resilience.Breaker, opts ...Option) (*Judge, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: judge requires a vision client", domain.ErrInvalidConfiguration)
	}
	if gw == nil {
		return nil, fmt.Errorf("%w: judge requires a gateway", domain.ErrInvalidConfiguration)
	}
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultMaxFailures, resilience.DefaultCooldown)
	}

	j := &Judge{
		client:  client,
		gateway: gw,
		breaker: breaker,
		policy: resilience.Policy{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
			MaxDelay:    defaultMaxDelay,
			Retryable:   isRetryableJudgeError,
		},
		spacing: defaultRankSpacing,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Evaluate judges one submission against the bounty's requirements. It never
// returns an error: any failure mode (missing image, transport failure,
// unparseable output) collapses to an invalid evaluation with a recorded
// reason, because the caller must always have a verdict to audit.
func (j *Judge) Evaluate(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) domain.AIEvaluation {
	start := time.Now()

	imageURL, err := j.resolveImage(ctx, sub)
	if err != nil {
		j.record("image_unresolvable", start)
		return domain.AIEvaluation{
			Score:       0,
			Valid:       false,
			Confidence:  1.0,
			Reasoning:   fmt.Sprintf("proof image could not be resolved: %v", err),
			Model:       j.client.GetModel(),
			EvaluatedAt: j.now().Unix(),
		}
	}

	req := ports.VisionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(bounty, sub),
		ImageURL:    imageURL,
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
	}

	var raw string
	err = resilience.Do(ctx, j.policy, func(ctx context.Context) error {
		return j.breaker.Do(func() error {
			var callErr error
			raw, callErr = j.client.Complete(ctx, req)
			return callErr
		})
	})
	if err != nil {
		j.record("model_error", start)
		return domain.AIEvaluation{
			Score:       0,
			Valid:       false,
			Confidence:  0,
			Reasoning:   fmt.Sprintf("evaluation failed: %v", err),
			Model:       j.client.GetModel(),
			EvaluatedAt: j.now().Unix(),
		}
	}

	eval := j.toEvaluation(raw)
	j.record("ok", start)
	return eval
}

// EvaluateAndRank judges every submission sequentially, spacing the calls,
// then orders the slice by descending score. The sort is stable so equal
// scores keep arrival order, which is the tie-break rule downstream.
func (j *Judge) EvaluateAndRank(ctx context.Context, bounty *domain.Bounty, subs []*domain.Submission) []*domain.Submission {
	for i, sub := range subs {
		if i > 0 && j.spacing > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(j.spacing):
			}
		}
		eval := j.Evaluate(ctx, bounty, sub)
		sub.AIEvaluation = &eval
	}

	ranked := make([]*domain.Submission, len(subs))
	copy(ranked, subs)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].AIEvaluation.Score > ranked[b].AIEvaluation.Score
	})
	return ranked
}

// resolveImage finds the HTTP URL of the proof image: the decoded content's
// media locator when available, otherwise the raw proof locator itself.
func (j *Judge) resolveImage(ctx context.Context, sub *domain.Submission) (string, error) {
	if sub.Content != nil && sub.Content.MediaURI != "" {
		return j.gateway.ResolveURL(sub.Content.MediaURI)
	}
	if sub.ProofURI == "" {
		return "", fmt.Errorf("submission has no proof locator")
	}

	// The proof locator may point at a JSON document wrapping the media, or
	// directly at the image. Try the document first.
	raw, err := j.gateway.FetchDocument(ctx, sub.ProofURI)
	if err == nil {
		if content, decodeErr := domain.DecodeProofContent(raw); decodeErr == nil && content.MediaURI != "" {
			return j.gateway.ResolveURL(content.MediaURI)
		}
	}
	return j.gateway.ResolveURL(sub.ProofURI)
}

// toEvaluation converts raw model output into a clamped evaluation. Parse
// failure yields an invalid evaluation carrying the raw text so an auditor
// can see what the model actually said.
func (j *Judge) toEvaluation(raw string) domain.AIEvaluation {
	resp, ok := parseJudgeResponse(raw)
	if !ok {
		return domain.AIEvaluation{
			Score:       0,
			Valid:       false,
			Confidence:  0,
			Reasoning:   "unparseable model response: " + strings.TrimSpace(raw),
			Model:       j.client.GetModel(),
			EvaluatedAt: j.now().Unix(),
		}
	}

	reasoning := resp.Reasoning
	if isAffirmativeConcern(resp.AuthenticityConcern) {
		reasoning = strings.TrimSpace(reasoning + " Authenticity concern: " + resp.AuthenticityConcern)
		resp.IsValid = false
	}

	return domain.AIEvaluation{
		Score:       clampFloat(resp.Score, 0, 100),
		Valid:       resp.IsValid,
		Confidence:  clampFloat(resp.Confidence, 0, 1),
		Reasoning:   reasoning,
		Model:       j.client.GetModel(),
		EvaluatedAt: j.now().Unix(),
	}
}

// isAffirmativeConcern reports whether the model actually flagged an
// authenticity problem. Models are asked to leave the field empty when there
// is none, but in practice they sometimes answer "none" or "no concerns
// detected"; those must not invalidate a good submission.
func isAffirmativeConcern(concern string) bool {
	c := strings.ToLower(strings.TrimSpace(concern))
	switch c {
	case "", "none", "no", "n/a", "na", "nil", "-", "nothing":
		return false
	}
	for _, prefix := range []string{"none ", "no ", "nothing "} {
		if strings.HasPrefix(c, prefix) {
			return false
		}
	}
	return true
}

// buildPrompt assembles the judging instruction from the bounty description
// and its rubric, with the required response format appended.
func buildPrompt(bounty *domain.Bounty, sub *domain.Submission) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Bounty: %s\n", bounty.Title)
	if bounty.Description != "" {
		fmt.Fprintf(&b, "Requirements: %s\n", bounty.Description)
	}

	if rubric := strings.TrimSpace(bounty.Criteria.Rules.AIRubric); rubric != "" {
		fmt.Fprintf(&b, "\nEvaluation rubric:\n%s\n", rubric)
	} else {
		b.WriteString("\nEvaluate whether the attached image convincingly demonstrates completion of the bounty requirements.\n")
	}

	if sub.Content != nil && sub.Content.Description != "" {
		fmt.Fprintf(&b, "\nSubmitter's description: %s\n", sub.Content.Description)
	}

	b.WriteString(`
Respond with only a fenced JSON block in exactly this format:

` + "```json" + `
{
  "score": <0-100>,
  "isValid": <true|false>,
  "confidence": <0.0-1.0>,
  "reasoning": "<your explanation>",
  "authenticityConcern": "<description of suspected manipulation, or empty string>"
}
` + "```" + `
`)
	return b.String()
}

func (j *Judge) record(status string, start time.Time) {
	if j.metrics == nil {
		return
	}
	j.metrics.RecordCounter("ai_evaluations_total", 1, map[string]string{"status": status})
	j.metrics.RecordLatency("ai_evaluation", time.Since(start), nil)
}

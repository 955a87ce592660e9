// Package monitor runs the claim discovery loop: it polls the ledger for new
// claims against watched bounties, resolves and parses their proofs, and
// drives the evaluation engine to verdicts and payouts.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/engine"
	"github.com/poidh-labs/sentinel/internal/ports"
)

// DefaultPollInterval is the claim discovery cadence when none is configured.
const DefaultPollInterval = 30 * time.Second

// ProofResolver resolves many claims' proof locators in one pass.
type ProofResolver interface {
	ResolveBatch(ctx context.Context, bountyID string, claimIDs []string) map[string]domain.Resolution
}

// DecisionEngine is the evaluation core the monitor drives.
type DecisionEngine interface {
	Record(sub *domain.Submission) bool
	EvaluateSubmission(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) (engine.Verdict, error)
	SelectWinner(ctx context.Context, bounty *domain.Bounty) (*domain.WinnerSelection, error)
	Forget(bountyID string)
}

// Monitor polls the ledger and shepherds submissions through evaluation.
type Monitor struct {
	ledger   ports.LedgerClient
	resolver ProofResolver
	gateway  ports.Gateway
	engine   DecisionEngine
	metrics  ports.MetricsCollector
	logger   *slog.Logger

	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	watched map[string]*domain.Bounty
	seen    map[string]map[string]bool
	pending map[string]*domain.Submission

	scheduler gocron.Scheduler
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval overrides the discovery cadence.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(mc ports.MetricsCollector) Option {
	return func(m *Monitor) { m.metrics = mc }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock overrides the deadline clock for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor over the given collaborators.
func New(ledger ports.LedgerClient, resolver ProofResolver, gw ports.Gateway, eng DecisionEngine, opts ...Option) (*Monitor, error) {
	if ledger == nil || resolver == nil || gw == nil || eng == nil {
		return nil, fmt.Errorf("%w: monitor requires ledger, resolver, gateway, and engine", domain.ErrInvalidConfiguration)
	}

	m := &Monitor{
		ledger:   ledger,
		resolver: resolver,
		gateway:  gw,
		engine:   eng,
		logger:   slog.Default(),
		interval: DefaultPollInterval,
		now:      time.Now,
		watched:  make(map[string]*domain.Bounty),
		seen:     make(map[string]map[string]bool),
		pending:  make(map[string]*domain.Submission),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Watch registers a bounty for claim discovery.
func (m *Monitor) Watch(bounty *domain.Bounty) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[bounty.ID] = bounty
	if m.seen[bounty.ID] == nil {
		m.seen[bounty.ID] = make(map[string]bool)
	}
}

// Unwatch stops discovery for a bounty and releases its evaluation state.
func (m *Monitor) Unwatch(bountyID string) {
	m.mu.Lock()
	delete(m.watched, bountyID)
	delete(m.seen, bountyID)
	delete(m.pending, bountyID)
	m.mu.Unlock()
	m.engine.Forget(bountyID)
}

// Start begins the background poll loop.
func (m *Monitor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() { m.Poll(ctx) }),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	m.scheduler = sched
	sched.Start()
	return nil
}

// Stop shuts the poll loop down.
func (m *Monitor) Stop() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

// Poll runs one discovery pass over every watched bounty. Exported so tests
// and the CLI can drive passes without the scheduler.
func (m *Monitor) Poll(ctx context.Context) {
	start := time.Now()
	for _, bounty := range m.snapshot() {
		if err := m.pollBounty(ctx, bounty); err != nil {
			m.logger.Error("bounty poll failed", "bounty", bounty.ID, "error", err)
		}
	}
	if m.metrics != nil {
		m.metrics.RecordLatency("monitor_poll", time.Since(start), nil)
	}
}

func (m *Monitor) snapshot() []*domain.Bounty {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Bounty, 0, len(m.watched))
	for _, b := range m.watched {
		out = append(out, b)
	}
	return out
}

func (m *Monitor) pollBounty(ctx context.Context, bounty *domain.Bounty) error {
	// An accepted claim whose payout failed settles before anything else;
	// first-wins forbids evaluating later claims past it.
	if sub := m.pendingPayout(bounty.ID); sub != nil {
		return m.settlePending(ctx, bounty, sub)
	}

	claims, err := m.ledger.GetClaimsForBounty(ctx, bounty.ID)
	if err != nil {
		return fmt.Errorf("failed to list claims: %w", err)
	}

	fresh := m.filterNew(bounty.ID, claims)
	if len(fresh) > 0 {
		m.ingest(ctx, bounty, fresh)
	}

	if bounty.Criteria.Mode == domain.SelectionAIJudged && m.deadlinePassed(bounty) {
		return m.concludeAIJudged(ctx, bounty)
	}
	return nil
}

// filterNew returns the claims not yet observed, marking them seen.
func (m *Monitor) filterNew(bountyID string, claims []ports.ClaimRef) []ports.ClaimRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	observed := m.seen[bountyID]
	if observed == nil {
		observed = make(map[string]bool)
		m.seen[bountyID] = observed
	}

	var fresh []ports.ClaimRef
	for _, c := range claims {
		if observed[c.ClaimID] {
			continue
		}
		observed[c.ClaimID] = true
		fresh = append(fresh, c)
	}
	return fresh
}

// ingest resolves, parses, and records new claims, then decides first-valid
// bounties claim-by-claim in arrival order.
func (m *Monitor) ingest(ctx context.Context, bounty *domain.Bounty, claims []ports.ClaimRef) {
	claimIDs := make([]string, len(claims))
	for i, c := range claims {
		claimIDs[i] = c.ClaimID
	}
	resolutions := m.resolver.ResolveBatch(ctx, bounty.ID, claimIDs)

	for _, claim := range claims {
		sub := m.buildSubmission(ctx, bounty, claim, resolutions[claim.ClaimID])
		if !m.engine.Record(sub) {
			continue
		}
		m.count("claims_ingested_total", string(bounty.Criteria.Mode))

		if bounty.Criteria.Mode != domain.SelectionFirstValid {
			continue
		}
		if m.pendingPayout(bounty.ID) != nil {
			// The winning claim is already decided; later arrivals are
			// recorded for audit but never evaluated.
			continue
		}
		done, err := m.decideFirstValid(ctx, bounty, sub)
		if err != nil {
			m.logger.Error("first-valid evaluation failed", "bounty", bounty.ID, "claim", claim.ClaimID, "error", err)
			continue
		}
		if done {
			m.Unwatch(bounty.ID)
			return
		}
	}
}

// buildSubmission assembles a submission from a claim, its resolution, and
// the fetched proof document. Every failure degrades to a partial submission
// so the validator can fail it gracefully instead of the claim vanishing.
func (m *Monitor) buildSubmission(ctx context.Context, bounty *domain.Bounty, claim ports.ClaimRef, res domain.Resolution) *domain.Submission {
	sub := &domain.Submission{
		ID:        bounty.ID + "/" + claim.ClaimID,
		BountyID:  bounty.ID,
		ClaimID:   claim.ClaimID,
		Submitter: claim.Submitter,
		CreatedAt: claim.CreatedAt,
	}

	if !res.Success {
		m.logger.Warn("proof resolution failed", "bounty", bounty.ID, "claim", claim.ClaimID, "error", res.Err)
		return sub
	}
	sub.ProofURI = res.URI

	raw, err := m.gateway.FetchDocument(ctx, res.URI)
	if err != nil {
		m.logger.Warn("proof fetch failed", "bounty", bounty.ID, "claim", claim.ClaimID, "error", err)
		return sub
	}

	content, err := domain.DecodeProofContent(raw)
	if err != nil {
		m.logger.Warn("proof decode failed", "bounty", bounty.ID, "claim", claim.ClaimID, "error", err)
		return sub
	}
	sub.Content = content
	return sub
}

// decideFirstValid evaluates one submission and pays out on acceptance.
// Returns true when the bounty is concluded. An accepted claim whose payout
// fails is parked as the bounty's pending winner so later claims cannot jump
// the queue; the next poll retries its payout.
func (m *Monitor) decideFirstValid(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) (bool, error) {
	verdict, err := m.engine.EvaluateSubmission(ctx, bounty, sub)
	if err != nil {
		return false, err
	}
	if !verdict.Accept {
		m.logger.Info("submission rejected", "bounty", bounty.ID, "claim", sub.ClaimID, "rationale", verdict.Rationale)
		return false, nil
	}

	if err := m.payFirstValid(ctx, bounty, sub, verdict.Rationale); err != nil {
		m.setPending(bounty.ID, sub)
		return false, err
	}
	return true, nil
}

// payFirstValid triggers the payout for an accepted first-valid claim.
func (m *Monitor) payFirstValid(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission, rationale string) error {
	txHash, err := m.ledger.AcceptClaim(ctx, bounty.ID, sub.ClaimID)
	if err != nil {
		return fmt.Errorf("payout failed for claim %s: %w", sub.ClaimID, err)
	}
	m.count("payouts_total", string(domain.SelectionFirstValid))
	m.logger.Info("bounty concluded",
		"bounty", bounty.ID, "claim", sub.ClaimID, "mode", domain.SelectionFirstValid,
		"tx", txHash, "rationale", rationale)
	return nil
}

// settlePending retries the payout of an already-accepted claim. The bounty
// stays watched until the ledger confirms the transaction.
func (m *Monitor) settlePending(ctx context.Context, bounty *domain.Bounty, sub *domain.Submission) error {
	if err := m.payFirstValid(ctx, bounty, sub, "accepted on a prior poll; payout retried"); err != nil {
		return err
	}
	m.Unwatch(bounty.ID)
	return nil
}

func (m *Monitor) pendingPayout(bountyID string) *domain.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[bountyID]
}

func (m *Monitor) setPending(bountyID string, sub *domain.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[bountyID] = sub
}

// concludeAIJudged runs winner selection after the deadline and pays the
// winner. A nil selection leaves the bounty to its creator; either way the
// monitor stops watching it.
func (m *Monitor) concludeAIJudged(ctx context.Context, bounty *domain.Bounty) error {
	selection, err := m.engine.SelectWinner(ctx, bounty)
	if err != nil {
		return fmt.Errorf("winner selection failed: %w", err)
	}

	if selection == nil {
		m.logger.Info("no qualifying submission", "bounty", bounty.ID)
		m.Unwatch(bounty.ID)
		return nil
	}

	txHash, err := m.ledger.AcceptClaim(ctx, bounty.ID, selection.Winner.ClaimID)
	if err != nil {
		// Selection succeeded but payout failed; keep watching so the next
		// poll retries AcceptClaim with a fresh selection.
		return fmt.Errorf("payout failed for winner %s: %w", selection.Winner.ClaimID, err)
	}
	m.count("payouts_total", string(domain.SelectionAIJudged))
	m.logger.Info("bounty concluded",
		"bounty", bounty.ID, "claim", selection.Winner.ClaimID, "mode", domain.SelectionAIJudged,
		"tx", txHash, "selection", selection.ID, "rationale", selection.Rationale)
	m.Unwatch(bounty.ID)
	return nil
}

func (m *Monitor) deadlinePassed(bounty *domain.Bounty) bool {
	deadline := bounty.Criteria.Deadline
	return deadline > 0 && m.now().Unix() > deadline
}

func (m *Monitor) count(metric, mode string) {
	if m.metrics != nil {
		m.metrics.RecordCounter(metric, 1, map[string]string{"mode": mode})
	}
}

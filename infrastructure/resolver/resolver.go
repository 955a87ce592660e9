// Package resolver resolves a claim's proof-content locator from on-chain
// event data, using a layered cache → indexed-log → direct-chain strategy
// with circuit breakers and request deduplication.
//
// Resolution failure is never fatal. Callers receive a Resolution value
// with Success=false and treat the proof as "content unavailable"; the
// deterministic validator then fails the content check gracefully.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

// Default resilience settings for the external strategies.
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerCooldown    = 60 * time.Second

	// DefaultBlockWindow bounds direct chain-log scans to a recent range;
	// full-chain scans are prohibitively slow.
	DefaultBlockWindow = 50_000
)

// Config holds the resolver's chain-facing settings.
type Config struct {
	// ContractAddress is the bounty contract whose events carry proof
	// locators. Missing address is a deployment mistake, fatal at startup.
	ContractAddress string

	// BlockWindow is how many recent blocks the direct strategy scans.
	BlockWindow uint64
}

// Deps are the resolver's injected collaborators. The breakers are
// constructed by the caller so production wiring shares them process-wide
// while tests get fresh state.
type Deps struct {
	Cache        ports.CacheStore
	Index        ports.LogIndexClient
	Ledger       ports.LedgerClient
	IndexBreaker *resilience.Breaker
	ChainBreaker *resilience.Breaker
	Metrics      ports.MetricsCollector
}

// Resolver resolves proof locators with cache-then-network layering.
type Resolver struct {
	cache        ports.CacheStore
	index        ports.LogIndexClient
	ledger       ports.LedgerClient
	indexBreaker *resilience.Breaker
	chainBreaker *resilience.Breaker
	metrics      ports.MetricsCollector

	contract    string
	blockWindow uint64

	group singleflight.Group
}

// New creates a resolver. It returns an error for configuration mistakes;
// those are fatal at startup, not retried.
func New(cfg Config, deps Deps) (*Resolver, error) {
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("%w: contract address is required", domain.ErrInvalidConfiguration)
	}
	if deps.Cache == nil || deps.Index == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("%w: resolver requires cache, index, and ledger clients", domain.ErrInvalidConfiguration)
	}

	blockWindow := cfg.BlockWindow
	if blockWindow == 0 {
		blockWindow = DefaultBlockWindow
	}
	indexBreaker := deps.IndexBreaker
	if indexBreaker == nil {
		indexBreaker = resilience.NewBreaker(DefaultBreakerMaxFailures, DefaultBreakerCooldown)
	}
	chainBreaker := deps.ChainBreaker
	if chainBreaker == nil {
		chainBreaker = resilience.NewBreaker(DefaultBreakerMaxFailures, DefaultBreakerCooldown)
	}

	return &Resolver{
		cache:        deps.Cache,
		index:        deps.Index,
		ledger:       deps.Ledger,
		indexBreaker: indexBreaker,
		chainBreaker: chainBreaker,
		metrics:      deps.Metrics,
		contract:     cfg.ContractAddress,
		blockWindow:  blockWindow,
	}, nil
}

// Resolve returns the proof locator for one claim. Concurrent calls for
// the same (bounty, claim) key are deduplicated: racing callers observe a
// single underlying fetch.
func (r *Resolver) Resolve(ctx context.Context, bountyID, claimID string) domain.Resolution {
	v, _, _ := r.group.Do(bountyID+"/"+claimID, func() (any, error) {
		return r.resolve(ctx, bountyID, claimID), nil
	})
	return v.(domain.Resolution)
}

func (r *Resolver) resolve(ctx context.Context, bountyID, claimID string) domain.Resolution {
	start := time.Now()
	var failures []string

	if entry, ok, err := r.cache.Get(ctx, bountyID, claimID); err == nil && ok {
		return r.finish(domain.Resolution{Success: true, URI: entry.URI, Source: domain.SourceCache}, start)
	} else if err != nil {
		failures = append(failures, fmt.Sprintf("cache: %v", err))
	}

	if uri, err := r.fromIndex(ctx, bountyID, claimID); err == nil {
		r.writeThrough(ctx, bountyID, claimID, uri, domain.SourceIndexLog)
		return r.finish(domain.Resolution{Success: true, URI: uri, Source: domain.SourceIndexLog}, start)
	} else {
		failures = append(failures, fmt.Sprintf("indexed-log: %v", err))
	}

	if uri, err := r.fromChain(ctx, bountyID, claimID); err == nil {
		r.writeThrough(ctx, bountyID, claimID, uri, domain.SourceChainLog)
		return r.finish(domain.Resolution{Success: true, URI: uri, Source: domain.SourceChainLog}, start)
	} else {
		failures = append(failures, fmt.Sprintf("chain-log: %v", err))
	}

	return r.finish(domain.Resolution{
		Success: false,
		Source:  domain.SourceNone,
		Err:     strings.Join(failures, "; "),
	}, start)
}

// ResolveBatch resolves many claims of one bounty, amortizing each external
// query across every still-missing claim: cache first, then a single
// indexed-log query, then a single chain-log query.
func (r *Resolver) ResolveBatch(ctx context.Context, bountyID string, claimIDs []string) map[string]domain.Resolution {
	start := time.Now()
	results := make(map[string]domain.Resolution, len(claimIDs))
	var missing []string

	for _, claimID := range claimIDs {
		if entry, ok, err := r.cache.Get(ctx, bountyID, claimID); err == nil && ok {
			results[claimID] = r.finish(domain.Resolution{Success: true, URI: entry.URI, Source: domain.SourceCache}, start)
			continue
		}
		missing = append(missing, claimID)
	}

	if len(missing) > 0 {
		missing = r.batchFromIndex(ctx, bountyID, missing, results, start)
	}
	if len(missing) > 0 {
		missing = r.batchFromChain(ctx, bountyID, missing, results, start)
	}
	for _, claimID := range missing {
		results[claimID] = r.finish(domain.Resolution{
			Success: false,
			Source:  domain.SourceNone,
			Err:     "all resolution strategies failed",
		}, start)
	}

	return results
}

// fromIndex queries the indexed-log API (one network call) and filters
// client-side for a ClaimCreated event matching this bounty and claim.
func (r *Resolver) fromIndex(ctx context.Context, bountyID, claimID string) (string, error) {
	var uri string
	err := r.indexBreaker.Do(func() error {
		items, err := r.index.DecodedEvents(ctx, r.contract)
		if err != nil {
			return err
		}
		found, ok := matchIndexedClaim(items, bountyID, claimID)
		if !ok {
			return fmt.Errorf("no ClaimCreated event for bounty %s claim %s", bountyID, claimID)
		}
		uri = found
		return nil
	})
	return uri, err
}

// fromChain queries the node for raw logs in a bounded recent block window
// and decodes them with the known event signature.
func (r *Resolver) fromChain(ctx context.Context, bountyID, claimID string) (string, error) {
	var uri string
	err := r.chainBreaker.Do(func() error {
		logs, err := r.recentLogs(ctx)
		if err != nil {
			return err
		}
		for _, entry := range logs {
			if !claimLogMatches(entry, bountyID, claimID) {
				continue
			}
			decoded, err := decodeClaimURI(entry.Data)
			if err != nil {
				return err
			}
			uri = decoded
			return nil
		}
		return fmt.Errorf("no matching log in recent %d blocks", r.blockWindow)
	})
	return uri, err
}

func (r *Resolver) batchFromIndex(ctx context.Context, bountyID string, claimIDs []string, results map[string]domain.Resolution, start time.Time) []string {
	var items []ports.IndexedLogItem
	err := r.indexBreaker.Do(func() error {
		var err error
		items, err = r.index.DecodedEvents(ctx, r.contract)
		return err
	})
	if err != nil {
		return claimIDs
	}

	var stillMissing []string
	for _, claimID := range claimIDs {
		if uri, ok := matchIndexedClaim(items, bountyID, claimID); ok {
			r.writeThrough(ctx, bountyID, claimID, uri, domain.SourceIndexLog)
			results[claimID] = r.finish(domain.Resolution{Success: true, URI: uri, Source: domain.SourceIndexLog}, start)
			continue
		}
		stillMissing = append(stillMissing, claimID)
	}
	return stillMissing
}

func (r *Resolver) batchFromChain(ctx context.Context, bountyID string, claimIDs []string, results map[string]domain.Resolution, start time.Time) []string {
	var logs []ports.LogEntry
	err := r.chainBreaker.Do(func() error {
		var err error
		logs, err = r.recentLogs(ctx)
		return err
	})
	if err != nil {
		return claimIDs
	}

	var stillMissing []string
	for _, claimID := range claimIDs {
		uri, found := "", false
		for _, entry := range logs {
			if claimLogMatches(entry, bountyID, claimID) {
				if decoded, err := decodeClaimURI(entry.Data); err == nil {
					uri, found = decoded, true
				}
				break
			}
		}
		if found {
			r.writeThrough(ctx, bountyID, claimID, uri, domain.SourceChainLog)
			results[claimID] = r.finish(domain.Resolution{Success: true, URI: uri, Source: domain.SourceChainLog}, start)
			continue
		}
		stillMissing = append(stillMissing, claimID)
	}
	return stillMissing
}

func (r *Resolver) recentLogs(ctx context.Context) ([]ports.LogEntry, error) {
	head, err := r.ledger.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	from := uint64(0)
	if head > r.blockWindow {
		from = head - r.blockWindow
	}
	return r.ledger.FilterLogs(ctx, ports.LogFilter{
		Address:   r.contract,
		Topic:     ClaimCreatedTopic,
		FromBlock: from,
		ToBlock:   head,
	})
}

// writeThrough persists a network-sourced resolution before it is returned.
// Put errors are deliberately swallowed: a cache write failure must never
// fail a successful resolution.
func (r *Resolver) writeThrough(ctx context.Context, bountyID, claimID, uri string, source domain.ResolutionSource) {
	_ = r.cache.Put(ctx, domain.CacheEntry{
		BountyID:  bountyID,
		ClaimID:   claimID,
		URI:       uri,
		Source:    source,
		FetchedAt: time.Now().Unix(),
		Integrity: domain.IntegrityTag(uri, claimID, bountyID, r.contract),
	})
}

func (r *Resolver) finish(res domain.Resolution, start time.Time) domain.Resolution {
	res.FetchTime = time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordCounter("proof_resolutions_total", 1, map[string]string{
			"source":  string(res.Source),
			"success": fmt.Sprintf("%t", res.Success),
		})
		r.metrics.RecordLatency("proof_resolve", res.FetchTime, nil)
	}
	return res
}

// matchIndexedClaim scans decoded events for a ClaimCreated entry matching
// the bounty and claim, returning its locator parameter.
func matchIndexedClaim(items []ports.IndexedLogItem, bountyID, claimID string) (string, bool) {
	for _, item := range items {
		if !strings.EqualFold(strings.TrimSpace(item.Method), "ClaimCreated") {
			continue
		}
		var gotBounty, gotClaim, uri string
		for _, p := range item.Params {
			switch strings.ToLower(p.Name) {
			case "bountyid", "bounty_id":
				gotBounty = p.Value
			case "claimid", "claim_id":
				gotClaim = p.Value
			case "uri", "tokenuri", "token_uri":
				uri = p.Value
			}
		}
		if gotBounty == bountyID && gotClaim == claimID && uri != "" {
			return uri, true
		}
	}
	return "", false
}

func claimLogMatches(entry ports.LogEntry, bountyID, claimID string) bool {
	return len(entry.Topics) >= 3 &&
		topicMatches(entry.Topics[1], claimID) &&
		topicMatches(entry.Topics[2], bountyID)
}

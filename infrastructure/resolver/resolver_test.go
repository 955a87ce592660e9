package resolver

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/ports"
	"github.com/poidh-labs/sentinel/internal/resilience"
)

const testContract = "0xCONTRACT"

// memCache is an in-memory ports.CacheStore recording puts.
type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]domain.CacheEntry)}
}

func (m *memCache) Get(_ context.Context, bountyID, claimID string) (domain.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[bountyID+"/"+claimID]
	return e, ok, nil
}

func (m *memCache) Put(_ context.Context, entry domain.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.entries[entry.BountyID+"/"+entry.ClaimID] = entry
	return nil
}

func (m *memCache) Flush(context.Context) error { return nil }
func (m *memCache) Close(context.Context) error { return nil }

// fakeIndex serves scripted decoded events and counts calls; an optional
// gate blocks calls so tests can hold requests in flight.
type fakeIndex struct {
	mu    sync.Mutex
	items []ports.IndexedLogItem
	err   error
	calls int
	gate  chan struct{}
}

func (f *fakeIndex) DecodedEvents(context.Context, string) ([]ports.IndexedLogItem, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeIndex) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLedger serves scripted raw logs.
type fakeLedger struct {
	head  uint64
	logs  []ports.LogEntry
	err   error
	calls int
}

func (f *fakeLedger) GetClaimsForBounty(context.Context, string) ([]ports.ClaimRef, error) {
	return nil, errors.New("not used")
}

func (f *fakeLedger) AcceptClaim(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLedger) BlockNumber(context.Context) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

func (f *fakeLedger) FilterLogs(context.Context, ports.LogFilter) ([]ports.LogEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.logs, nil
}

func claimCreatedItem(bountyID, claimID, uri string) ports.IndexedLogItem {
	return ports.IndexedLogItem{
		Method: "ClaimCreated",
		Params: []ports.IndexedLogParam{
			{Name: "bountyId", Type: "uint256", Value: bountyID},
			{Name: "claimId", Type: "uint256", Value: claimID},
			{Name: "uri", Type: "string", Value: uri},
		},
	}
}

// encodeStringData ABI-encodes a single dynamic string the way the contract
// emits it: 32-byte offset, 32-byte length, padded UTF-8 bytes.
func encodeStringData(t *testing.T, s string) string {
	t.Helper()
	padded := (len(s) + 31) / 32 * 32
	buf := make([]byte, 64+padded)
	buf[31] = 32
	buf[63] = byte(len(s))
	copy(buf[64:], s)
	return "0x" + hex.EncodeToString(buf)
}

func newTestResolver(t *testing.T, cache ports.CacheStore, index ports.LogIndexClient, ledger ports.LedgerClient) *Resolver {
	t.Helper()
	r, err := New(
		Config{ContractAddress: testContract},
		Deps{
			Cache:        cache,
			Index:        index,
			Ledger:       ledger,
			IndexBreaker: resilience.NewBreaker(5, time.Minute),
			ChainBreaker: resilience.NewBreaker(5, time.Minute),
		},
	)
	require.NoError(t, err)
	return r
}

// TestNew_RequiresConfiguration verifies missing settings are fatal.
func TestNew_RequiresConfiguration(t *testing.T) {
	_, err := New(Config{}, Deps{Cache: newMemCache(), Index: &fakeIndex{}, Ledger: &fakeLedger{}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = New(Config{ContractAddress: testContract}, Deps{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

// TestResolve_IndexThenCache verifies the indexed-log path populates the
// cache so the second resolution is a cache hit.
func TestResolve_IndexThenCache(t *testing.T) {
	cache := newMemCache()
	index := &fakeIndex{items: []ports.IndexedLogItem{claimCreatedItem("7", "3", "ipfs://QmX")}}
	r := newTestResolver(t, cache, index, &fakeLedger{})

	first := r.Resolve(context.Background(), "7", "3")
	require.True(t, first.Success)
	assert.Equal(t, "ipfs://QmX", first.URI)
	assert.Equal(t, domain.SourceIndexLog, first.Source)

	second := r.Resolve(context.Background(), "7", "3")
	require.True(t, second.Success)
	assert.Equal(t, domain.SourceCache, second.Source)
	assert.Equal(t, first.URI, second.URI, "cache returns the identical locator")
	assert.Equal(t, 1, index.callCount(), "second resolution must not hit the network")
}

// TestResolve_WriteThroughIntegrity verifies cached entries carry the audit
// integrity tag.
func TestResolve_WriteThroughIntegrity(t *testing.T) {
	cache := newMemCache()
	index := &fakeIndex{items: []ports.IndexedLogItem{claimCreatedItem("7", "3", "ipfs://QmX")}}
	r := newTestResolver(t, cache, index, &fakeLedger{})

	r.Resolve(context.Background(), "7", "3")

	entry, ok, err := cache.Get(context.Background(), "7", "3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.IntegrityTag("ipfs://QmX", "3", "7", testContract), entry.Integrity)
}

// TestResolve_ChainFallback verifies the direct chain-log strategy runs when
// the indexed API fails.
func TestResolve_ChainFallback(t *testing.T) {
	index := &fakeIndex{err: errors.New("explorer down")}
	ledger := &fakeLedger{
		head: 100_000,
		logs: []ports.LogEntry{{
			Address: testContract,
			Topics: []string{
				ClaimCreatedTopic,
				"0x0000000000000000000000000000000000000000000000000000000000000003",
				"0x0000000000000000000000000000000000000000000000000000000000000007",
			},
			Data: encodeStringData(t, "ipfs://QmChain"),
		}},
	}
	r := newTestResolver(t, newMemCache(), index, ledger)

	res := r.Resolve(context.Background(), "7", "3")
	require.True(t, res.Success, res.Err)
	assert.Equal(t, "ipfs://QmChain", res.URI)
	assert.Equal(t, domain.SourceChainLog, res.Source)
}

// TestResolve_AllStrategiesFail verifies a total failure is a value with
// every strategy's error joined, not a panic or a lone error return.
func TestResolve_AllStrategiesFail(t *testing.T) {
	index := &fakeIndex{err: errors.New("explorer down")}
	ledger := &fakeLedger{err: errors.New("node down")}
	r := newTestResolver(t, newMemCache(), index, ledger)

	res := r.Resolve(context.Background(), "7", "3")

	assert.False(t, res.Success)
	assert.Equal(t, domain.SourceNone, res.Source)
	assert.Contains(t, res.Err, "indexed-log")
	assert.Contains(t, res.Err, "chain-log")
}

// TestResolve_Deduplicates verifies concurrent resolutions of one claim
// share a single underlying fetch.
func TestResolve_Deduplicates(t *testing.T) {
	gate := make(chan struct{})
	index := &fakeIndex{
		items: []ports.IndexedLogItem{claimCreatedItem("7", "3", "ipfs://QmX")},
		gate:  gate,
	}
	r := newTestResolver(t, newMemCache(), index, &fakeLedger{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]domain.Resolution, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "7", "3")
		}(i)
	}

	// Let the racing callers pile onto the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, res := range results {
		require.True(t, res.Success, "caller %d", i)
		assert.Equal(t, "ipfs://QmX", res.URI)
	}
	assert.Equal(t, 1, index.callCount(), "singleflight must collapse the fetch")
}

// TestResolve_BreakerOpensAfterRepeatedFailures verifies the indexed-log
// breaker stops hammering a dead API.
func TestResolve_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	index := &fakeIndex{err: errors.New("explorer down")}
	ledger := &fakeLedger{err: errors.New("node down")}
	r := newTestResolver(t, newMemCache(), index, ledger)

	for i := 0; i < 10; i++ {
		r.Resolve(context.Background(), "7", string(rune('a'+i)))
	}

	assert.Equal(t, 5, index.callCount(), "breaker caps failing calls at maxFailures")
}

// TestResolveBatch_AmortizesNetworkCalls verifies one indexed-log query
// serves many claims and cache hits skip the network entirely.
func TestResolveBatch_AmortizesNetworkCalls(t *testing.T) {
	cache := newMemCache()
	index := &fakeIndex{items: []ports.IndexedLogItem{
		claimCreatedItem("7", "1", "ipfs://Qm1"),
		claimCreatedItem("7", "2", "ipfs://Qm2"),
		claimCreatedItem("7", "3", "ipfs://Qm3"),
	}}
	r := newTestResolver(t, cache, index, &fakeLedger{})

	results := r.ResolveBatch(context.Background(), "7", []string{"1", "2", "3", "missing"})

	require.Len(t, results, 4)
	assert.Equal(t, 1, index.callCount(), "one network call for the whole batch")
	for _, id := range []string{"1", "2", "3"} {
		assert.True(t, results[id].Success, id)
		assert.Equal(t, domain.SourceIndexLog, results[id].Source)
	}
	assert.False(t, results["missing"].Success)

	// A second batch is served entirely from cache.
	again := r.ResolveBatch(context.Background(), "7", []string{"1", "2", "3"})
	for _, id := range []string{"1", "2", "3"} {
		assert.Equal(t, domain.SourceCache, again[id].Source)
	}
	assert.Equal(t, 1, index.callCount(), "fully cached batch makes no network call")
}

// TestMatchIndexedClaim_ParamAliases verifies snake_case parameter names and
// tokenUri aliases are accepted.
func TestMatchIndexedClaim_ParamAliases(t *testing.T) {
	items := []ports.IndexedLogItem{{
		Method: "ClaimCreated",
		Params: []ports.IndexedLogParam{
			{Name: "bounty_id", Value: "7"},
			{Name: "claim_id", Value: "3"},
			{Name: "tokenUri", Value: "ipfs://QmAlias"},
		},
	}}

	uri, ok := matchIndexedClaim(items, "7", "3")
	require.True(t, ok)
	assert.Equal(t, "ipfs://QmAlias", uri)

	_, ok = matchIndexedClaim(items, "7", "4")
	assert.False(t, ok)
}

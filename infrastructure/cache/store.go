// Package cache implements the persistent proof-URI cache backed by
// SQLite, with an in-memory mirror and debounced flushing.
//
// Writes are batched rather than synchronous: a crash inside the debounce
// window can lose recent entries, which is acceptable because the source of
// truth (on-chain events) is re-derivable. Entries never expire; proof URIs
// are immutable once a claim exists on-chain.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/poidh-labs/sentinel/internal/domain"
	"github.com/poidh-labs/sentinel/internal/ports"
)

// DefaultFlushInterval is the debounce window between an entry being
// recorded and the batch write that persists it.
const DefaultFlushInterval = 2 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS proof_uris (
	bounty_id  TEXT NOT NULL,
	claim_id   TEXT NOT NULL,
	uri        TEXT NOT NULL,
	source     TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	integrity  TEXT NOT NULL,
	PRIMARY KEY (bounty_id, claim_id)
);`

type key struct {
	bountyID string
	claimID  string
}

// Store is a ports.CacheStore over SQLite. The in-memory mirror holds every
// entry, so reads never touch disk; only writes do, and only on flush.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	mirror map[key]domain.CacheEntry
	dirty  map[key]domain.CacheEntry
	timer  *time.Timer
	closed bool

	flushInterval time.Duration
}

var _ ports.CacheStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithFlushInterval overrides the debounce window. Tests use short windows.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Store) { s.flushInterval = d }
}

// Open creates or opens the cache database at path and loads all existing
// entries into the mirror.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}

	s := &Store{
		db:            db,
		mirror:        make(map[key]domain.CacheEntry),
		dirty:         make(map[key]domain.CacheEntry),
		flushInterval: DefaultFlushInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bounty_id, claim_id, uri, source, fetched_at, integrity FROM proof_uris`)
	if err != nil {
		return fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.CacheEntry
		var source string
		if err := rows.Scan(&e.BountyID, &e.ClaimID, &e.URI, &source, &e.FetchedAt, &e.Integrity); err != nil {
			return fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.Source = domain.ResolutionSource(source)
		s.mirror[key{e.BountyID, e.ClaimID}] = e
	}
	return rows.Err()
}

// Get returns the cached entry for (bounty, claim) and whether it exists.
// Reads are served from the mirror and include not-yet-flushed writes.
func (s *Store) Get(_ context.Context, bountyID, claimID string) (domain.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.mirror[key{bountyID, claimID}]
	return e, ok, nil
}

// Put records an entry in the mirror and schedules a debounced flush.
func (s *Store) Put(_ context.Context, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	k := key{entry.BountyID, entry.ClaimID}
	s.mirror[k] = entry
	s.dirty[k] = entry

	if s.timer == nil {
		s.timer = time.AfterFunc(s.flushInterval, func() {
			// Flush errors here surface through metrics on the caller side;
			// the entry remains dirty and is retried on the next flush.
			_ = s.Flush(context.Background())
		})
	}
	return nil
}

// Flush writes all pending entries in a single transaction.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	pending := s.dirty
	s.dirty = make(map[key]domain.CacheEntry)
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.requeue(pending)
		return fmt.Errorf("failed to begin cache flush: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO proof_uris (bounty_id, claim_id, uri, source, fetched_at, integrity)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		s.requeue(pending)
		return fmt.Errorf("failed to prepare cache flush: %w", err)
	}
	defer stmt.Close()

	for _, e := range pending {
		if _, err := stmt.ExecContext(ctx, e.BountyID, e.ClaimID, e.URI, string(e.Source), e.FetchedAt, e.Integrity); err != nil {
			tx.Rollback()
			s.requeue(pending)
			return fmt.Errorf("failed to write cache entry %s/%s: %w", e.BountyID, e.ClaimID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.requeue(pending)
		return fmt.Errorf("failed to commit cache flush: %w", err)
	}
	return nil
}

// requeue puts failed writes back on the dirty set so the next flush
// retries them.
func (s *Store) requeue(pending map[key]domain.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range pending {
		if _, exists := s.dirty[k]; !exists {
			s.dirty[k] = e
		}
	}
}

// Close flushes pending entries and closes the database.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

// Package cache is the SQLite-backed result cache. It makes batch runs
// resumable: completed lookups survive a crash, failures are recorded with
// their attempt counts, and entries expire lazily after a TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dispodojo/agent-finder/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	address_hash   TEXT PRIMARY KEY,
	raw_address    TEXT NOT NULL,
	agent_name     TEXT DEFAULT '',
	brokerage      TEXT DEFAULT '',
	phone          TEXT DEFAULT '',
	email          TEXT DEFAULT '',
	source         TEXT DEFAULT '',
	listing_url    TEXT DEFAULT '',
	list_date      TEXT DEFAULT '',
	days_on_market TEXT DEFAULT '',
	listing_price  TEXT DEFAULT '',
	status         TEXT DEFAULT 'found',
	scraped_at     TEXT NOT NULL,
	expires_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS failures (
	address_hash  TEXT PRIMARY KEY,
	raw_address   TEXT NOT NULL,
	sources_tried TEXT DEFAULT '[]',
	error         TEXT DEFAULT '',
	attempts      INTEGER DEFAULT 1,
	last_attempt  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_address ON results(raw_address);
`

// migrations are applied best-effort: adding a column that already exists
// fails, and that failure is ignored
var migrations = []string{
	`ALTER TABLE results ADD COLUMN list_date TEXT DEFAULT ''`,
	`ALTER TABLE results ADD COLUMN days_on_market TEXT DEFAULT ''`,
	`ALTER TABLE results ADD COLUMN listing_price TEXT DEFAULT ''`,
}

// Stats are the cache counters reported by the CLI and the HTTP API
type Stats struct {
	CachedResults    int `json:"cached_results" db:"cached_results"`
	RecordedFailures int `json:"recorded_failures" db:"recorded_failures"`
}

// Entry is one cached row, used for export
type Entry struct {
	AddressHash  string `json:"address_hash" db:"address_hash"`
	RawAddress   string `json:"raw_address" db:"raw_address"`
	AgentName    string `json:"agent_name" db:"agent_name"`
	Brokerage    string `json:"brokerage" db:"brokerage"`
	Phone        string `json:"phone" db:"phone"`
	Email        string `json:"email" db:"email"`
	Source       string `json:"source" db:"source"`
	ListingURL   string `json:"listing_url" db:"listing_url"`
	ListDate     string `json:"list_date" db:"list_date"`
	DaysOnMarket string `json:"days_on_market" db:"days_on_market"`
	ListingPrice string `json:"listing_price" db:"listing_price"`
	Status       string `json:"status" db:"status"`
	ScrapedAt    string `json:"scraped_at" db:"scraped_at"`
	ExpiresAt    string `json:"expires_at" db:"expires_at"`
}

// Cache is a SQLite-backed store of lookup results and failures
type Cache struct {
	db  *sqlx.DB
	ttl time.Duration
}

// Open opens (or creates) the cache database and applies the schema
func Open(path string, ttlDays int) (*Cache, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// SQLite writes require a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	for _, m := range migrations {
		db.Exec(m)
	}

	return &Cache{
		db:  db,
		ttl: time.Duration(ttlDays) * 24 * time.Hour,
	}, nil
}

// Close closes the underlying database
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key hashes an address into the cache key. Hashing uppercases and trims
// first so trivially different spellings of the same input share an entry.
func Key(address string) string {
	normalized := strings.ToUpper(strings.TrimSpace(address))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached agent info for an address, or nil when there is
// no unexpired entry
func (c *Cache) Get(ctx context.Context, address string) (*models.AgentInfo, error) {
	var e Entry
	err := c.db.GetContext(ctx, &e,
		`SELECT * FROM results WHERE address_hash = ? AND expires_at > ?`,
		Key(address), nowISO())
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	return &models.AgentInfo{
		AgentName:    e.AgentName,
		Brokerage:    e.Brokerage,
		Phone:        e.Phone,
		Email:        e.Email,
		Source:       e.Source,
		ListingURL:   e.ListingURL,
		ListDate:     e.ListDate,
		DaysOnMarket: e.DaysOnMarket,
		ListingPrice: e.ListingPrice,
	}, nil
}

// Put caches a successful lookup and clears any recorded failure for the
// same address. Both writes happen in one transaction.
func (c *Cache) Put(ctx context.Context, address string, info models.AgentInfo, status models.LookupStatus) error {
	now := time.Now().UTC()
	key := Key(address)

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting cache tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO results
		 (address_hash, raw_address, agent_name, brokerage, phone, email,
		  source, listing_url, list_date, days_on_market, listing_price,
		  status, scraped_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, address, info.AgentName, info.Brokerage, info.Phone, info.Email,
		info.Source, info.ListingURL, info.ListDate, info.DaysOnMarket,
		info.ListingPrice, string(status),
		now.Format(time.RFC3339), now.Add(c.ttl).Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM failures WHERE address_hash = ?`, key); err != nil {
		return fmt.Errorf("clearing failure record: %w", err)
	}

	return tx.Commit()
}

// RecordFailure records a failed lookup, bumping the attempt counter when
// the address already failed before
func (c *Cache) RecordFailure(ctx context.Context, address string, sourcesTried []string, errMsg string) error {
	tried, err := json.Marshal(sourcesTried)
	if err != nil {
		return fmt.Errorf("encoding sources tried: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO failures (address_hash, raw_address, sources_tried, error, attempts, last_attempt)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(address_hash) DO UPDATE SET
		   sources_tried = excluded.sources_tried,
		   error = excluded.error,
		   attempts = attempts + 1,
		   last_attempt = excluded.last_attempt`,
		Key(address), address, string(tried), errMsg, nowISO())
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	return nil
}

// Failure is one recorded failed lookup
type Failure struct {
	AddressHash  string `json:"address_hash" db:"address_hash"`
	RawAddress   string `json:"raw_address" db:"raw_address"`
	SourcesTried string `json:"sources_tried" db:"sources_tried"`
	Error        string `json:"error" db:"error"`
	Attempts     int    `json:"attempts" db:"attempts"`
	LastAttempt  string `json:"last_attempt" db:"last_attempt"`
}

// GetFailure returns the failure record for an address, or nil
func (c *Cache) GetFailure(ctx context.Context, address string) (*Failure, error) {
	var f Failure
	err := c.db.GetContext(ctx, &f,
		`SELECT * FROM failures WHERE address_hash = ?`, Key(address))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading failure record: %w", err)
	}
	return &f, nil
}

// PendingAddresses filters the given addresses down to those without an
// unexpired cache entry, preserving order
func (c *Cache) PendingAddresses(ctx context.Context, addresses []string) ([]string, error) {
	var hashes []string
	err := c.db.SelectContext(ctx, &hashes,
		`SELECT address_hash FROM results WHERE expires_at > ?`, nowISO())
	if err != nil {
		return nil, fmt.Errorf("listing cached hashes: %w", err)
	}

	cached := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		cached[h] = struct{}{}
	}

	pending := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if _, ok := cached[Key(a)]; !ok {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// AllResults returns every unexpired cached entry, for export
func (c *Cache) AllResults(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := c.db.SelectContext(ctx, &entries,
		`SELECT * FROM results WHERE expires_at > ?`, nowISO())
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	return entries, nil
}

// Stats returns the cache counters
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.GetContext(ctx, &s.CachedResults,
		`SELECT COUNT(*) FROM results WHERE expires_at > ?`, nowISO())
	if err != nil {
		return s, fmt.Errorf("counting cached results: %w", err)
	}
	if err := c.db.GetContext(ctx, &s.RecordedFailures,
		`SELECT COUNT(*) FROM failures`); err != nil {
		return s, fmt.Errorf("counting failures: %w", err)
	}
	return s, nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

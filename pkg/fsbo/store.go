package fsbo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dispodojo/agent-finder/pkg/models"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS fsbo_searches (
	search_id      TEXT PRIMARY KEY,
	state          TEXT DEFAULT '',
	city_zip       TEXT DEFAULT '',
	location       TEXT DEFAULT '',
	location_type  TEXT DEFAULT '',
	created_at     TEXT NOT NULL,
	status         TEXT DEFAULT 'running',
	total_listings INTEGER DEFAULT 0,
	criteria_json  TEXT DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS fsbo_listings (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id      TEXT NOT NULL,
	address        TEXT DEFAULT '',
	city           TEXT DEFAULT '',
	state          TEXT DEFAULT '',
	zip_code       TEXT DEFAULT '',
	price          INTEGER,
	beds           INTEGER,
	baths          REAL,
	sqft           INTEGER,
	property_type  TEXT DEFAULT '',
	days_on_market INTEGER,
	phone          TEXT DEFAULT '',
	email          TEXT DEFAULT '',
	owner_name     TEXT DEFAULT '',
	listing_url    TEXT DEFAULT '',
	source         TEXT DEFAULT '',
	contact_status TEXT DEFAULT 'none'
);

CREATE INDEX IF NOT EXISTS idx_listings_search_id ON fsbo_listings(search_id);
`

// SearchRecord is one row of FSBO search history
type SearchRecord struct {
	SearchID      string `json:"search_id" db:"search_id"`
	State         string `json:"state" db:"state"`
	CityZip       string `json:"city_zip" db:"city_zip"`
	Location      string `json:"location" db:"location"`
	LocationType  string `json:"location_type" db:"location_type"`
	CreatedAt     string `json:"created_at" db:"created_at"`
	Status        string `json:"status" db:"status"`
	TotalListings int    `json:"total_listings" db:"total_listings"`
	CriteriaJSON  string `json:"criteria_json" db:"criteria_json"`
}

// Criteria decodes the stored search criteria
func (r SearchRecord) Criteria() (models.FSBOSearchCriteria, error) {
	var c models.FSBOSearchCriteria
	err := json.Unmarshal([]byte(r.CriteriaJSON), &c)
	return c, err
}

// ListingRecord is one stored FSBO listing
type ListingRecord struct {
	ID            int64    `json:"id" db:"id"`
	SearchID      string   `json:"search_id" db:"search_id"`
	Address       string   `json:"address" db:"address"`
	City          string   `json:"city" db:"city"`
	State         string   `json:"state" db:"state"`
	ZipCode       string   `json:"zip_code" db:"zip_code"`
	Price         *int     `json:"price,omitempty" db:"price"`
	Beds          *int     `json:"beds,omitempty" db:"beds"`
	Baths         *float64 `json:"baths,omitempty" db:"baths"`
	Sqft          *int     `json:"sqft,omitempty" db:"sqft"`
	PropertyType  string   `json:"property_type,omitempty" db:"property_type"`
	DaysOnMarket  *int     `json:"days_on_market,omitempty" db:"days_on_market"`
	Phone         string   `json:"phone,omitempty" db:"phone"`
	Email         string   `json:"email,omitempty" db:"email"`
	OwnerName     string   `json:"owner_name,omitempty" db:"owner_name"`
	ListingURL    string   `json:"listing_url" db:"listing_url"`
	Source        string   `json:"source" db:"source"`
	ContactStatus string   `json:"contact_status" db:"contact_status"`
}

// Store persists FSBO search history and listings in SQLite. Listings
// hang off their search by search_id; deletes cascade manually since the
// schema declares no foreign keys.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (or creates) the FSBO database and applies the schema
func OpenStore(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening fsbo db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fsbo schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSearch records a new search in running state. Saving an id twice is
// a no-op.
func (s *Store) SaveSearch(ctx context.Context, id string, criteria models.FSBOSearchCriteria) error {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encoding criteria: %w", err)
	}

	var state, cityZip string
	if criteria.LocationType == models.LocationZip {
		cityZip = criteria.Location
	} else {
		city, st := criteria.CityState()
		state = st
		cityZip = city
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO fsbo_searches
		 (search_id, state, city_zip, location, location_type, created_at, status, criteria_json)
		 VALUES (?, ?, ?, ?, ?, ?, 'running', ?)`,
		id, state, cityZip, criteria.Location, string(criteria.LocationType),
		time.Now().UTC().Format(time.RFC3339), string(raw))
	if err != nil {
		return fmt.Errorf("saving search: %w", err)
	}
	return nil
}

// CompleteSearch marks a search complete with its final listing count
func (s *Store) CompleteSearch(ctx context.Context, id string, totalListings int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fsbo_searches SET status = 'complete', total_listings = ? WHERE search_id = ?`,
		totalListings, id)
	if err != nil {
		return fmt.Errorf("completing search: %w", err)
	}
	return nil
}

// FailSearch marks a search as errored
func (s *Store) FailSearch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fsbo_searches SET status = 'error' WHERE search_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failing search: %w", err)
	}
	return nil
}

// SaveListings appends the listings of one search in a single transaction
func (s *Store) SaveListings(ctx context.Context, searchID string, listings []models.FSBOListing) error {
	if len(listings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting listings tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO fsbo_listings
		 (search_id, address, city, state, zip_code, price, beds, baths, sqft,
		  property_type, days_on_market, phone, email, owner_name, listing_url,
		  source, contact_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing listings insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		_, err := stmt.ExecContext(ctx,
			searchID, l.Address, l.City, l.State, l.ZipCode,
			l.Price, l.Beds, l.Baths, l.Sqft, l.PropertyType, l.DaysOnMarket,
			l.Phone, l.Email, l.OwnerName, l.ListingURL, l.Source,
			string(l.ContactStat))
		if err != nil {
			return fmt.Errorf("inserting listing: %w", err)
		}
	}
	return tx.Commit()
}

// Searches returns the search history, newest first
func (s *Store) Searches(ctx context.Context) ([]SearchRecord, error) {
	var records []SearchRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM fsbo_searches ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing searches: %w", err)
	}
	return records, nil
}

// Search returns one search record, or nil when the id is unknown
func (s *Store) Search(ctx context.Context, id string) (*SearchRecord, error) {
	var r SearchRecord
	err := s.db.GetContext(ctx, &r,
		`SELECT * FROM fsbo_searches WHERE search_id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading search: %w", err)
	}
	return &r, nil
}

// Listings returns every listing of a search in insertion order
func (s *Store) Listings(ctx context.Context, searchID string) ([]ListingRecord, error) {
	var records []ListingRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM fsbo_listings WHERE search_id = ? ORDER BY id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return records, nil
}

// ListingsPage returns one page of a search's listings plus the total count
func (s *Store) ListingsPage(ctx context.Context, searchID string, offset, limit int) ([]ListingRecord, int, error) {
	var total int
	err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM fsbo_listings WHERE search_id = ?`, searchID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting results: %w", err)
	}

	var records []ListingRecord
	err = s.db.SelectContext(ctx, &records,
		`SELECT * FROM fsbo_listings WHERE search_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		searchID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("paging results: %w", err)
	}
	return records, total, nil
}

// DeleteSearch removes a search and its listings. Listings go first since
// nothing enforces the relation at the schema level.
func (s *Store) DeleteSearch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fsbo_listings WHERE search_id = ?`, id); err != nil {
		return fmt.Errorf("deleting listings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fsbo_searches WHERE search_id = ?`, id); err != nil {
		return fmt.Errorf("deleting search: %w", err)
	}
	return tx.Commit()
}

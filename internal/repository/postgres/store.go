// Package postgres implements the persistence layer against PostgreSQL.
// Each aggregate gets its own repository; Store bundles them around one
// shared *sql.DB so callers wire a single handle.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/acreage/leadline/internal/config"
)

// Store bundles all repositories over one database handle.
type Store struct {
	DB *sql.DB

	Parties  *PartyRepo
	Owners   *OwnerRepo
	Parcels  *ParcelRepo
	Leads    *LeadRepo
	Attempts *AttemptRepo
	Inbound  *InboundRepo
	Timeline *TimelineRepo
	Buyers   *BuyerRepo
	Deals    *DealRepo
	Sheets   *DealSheetRepo
	Tasks    *TaskRepo
	Alerts   *AlertConfigRepo
	Feeds    *FeedRepo
}

// NewStore wraps an open database handle with repositories.
func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:       db,
		Parties:  NewPartyRepo(db),
		Owners:   NewOwnerRepo(db),
		Parcels:  NewParcelRepo(db),
		Leads:    NewLeadRepo(db),
		Attempts: NewAttemptRepo(db),
		Inbound:  NewInboundRepo(db),
		Timeline: NewTimelineRepo(db),
		Buyers:   NewBuyerRepo(db),
		Deals:    NewDealRepo(db),
		Sheets:   NewDealSheetRepo(db),
		Tasks:    NewTaskRepo(db),
		Alerts:   NewAlertConfigRepo(db),
		Feeds:    NewFeedRepo(db),
	}
}

// Open connects to Postgres with the configured pool settings and verifies
// the connection before returning.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewStore(db), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// jsonArg adapts marshaled JSON for a jsonb parameter. lib/pq encodes
// []byte as bytea, which jsonb columns reject; strings pass through.
// Empty input becomes NULL.
func jsonArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

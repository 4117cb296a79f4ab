package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// FeedRepo persists bulletin feed cursors so a restart never re-announces
// old items.
type FeedRepo struct{ db *sql.DB }

// NewFeedRepo creates a Postgres-backed feed cursor repository.
func NewFeedRepo(db *sql.DB) *FeedRepo { return &FeedRepo{db: db} }

// Get loads the cursor for a feed URL; a never-seen feed returns a zero
// cursor rather than an error.
func (r *FeedRepo) Get(ctx context.Context, feedURL string) (*domain.FeedState, error) {
	var s domain.FeedState
	err := r.db.QueryRowContext(ctx, `
		SELECT feed_url, market_code, last_guid, last_polled_at, error_count
		FROM bulletin_feeds WHERE feed_url = $1
	`, feedURL).Scan(&s.FeedURL, &s.MarketCode, &s.LastGUID, &s.LastPolledAt, &s.ErrorCount)
	if err == sql.ErrNoRows {
		return &domain.FeedState{FeedURL: feedURL}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feed state: %w", err)
	}
	return &s, nil
}

// SetCursor records a successful poll: the newest GUID seen and a reset
// error count.
func (r *FeedRepo) SetCursor(ctx context.Context, feedURL, marketCode, lastGUID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bulletin_feeds (feed_url, market_code, last_guid, last_polled_at, error_count)
		VALUES ($1, $2, $3, NOW(), 0)
		ON CONFLICT (feed_url) DO UPDATE SET
			market_code    = EXCLUDED.market_code,
			last_guid      = EXCLUDED.last_guid,
			last_polled_at = NOW(),
			error_count    = 0
	`, feedURL, marketCode, lastGUID)
	if err != nil {
		return fmt.Errorf("set feed cursor: %w", err)
	}
	return nil
}

// RecordError bumps the feed's consecutive error count for backoff.
func (r *FeedRepo) RecordError(ctx context.Context, feedURL, marketCode string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO bulletin_feeds (feed_url, market_code, last_polled_at, error_count)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (feed_url) DO UPDATE SET
			last_polled_at = NOW(),
			error_count    = bulletin_feeds.error_count + 1
		RETURNING error_count
	`, feedURL, marketCode).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("record feed error: %w", err)
	}
	return count, nil
}

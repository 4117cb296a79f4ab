package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/domain"
)

// DealSheetRepo caches generated deal sheets, one per lead.
type DealSheetRepo struct{ db *sql.DB }

// NewDealSheetRepo creates a Postgres-backed deal sheet repository.
func NewDealSheetRepo(db *sql.DB) *DealSheetRepo { return &DealSheetRepo{db: db} }

// Get loads a lead's cached sheet regardless of freshness; callers check
// Fresh themselves so a stale sheet can still serve as a fallback.
func (r *DealSheetRepo) Get(ctx context.Context, leadID int64) (*domain.DealSheet, error) {
	var d domain.DealSheet
	err := r.db.QueryRowContext(ctx, `
		SELECT id, lead_id, content, ai_description, generated_at, expires_at
		FROM deal_sheets WHERE lead_id = $1
	`, leadID).Scan(&d.ID, &d.LeadID, &d.Content, &d.AIDescription, &d.GeneratedAt, &d.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deal sheet: %w", err)
	}
	return &d, nil
}

// Save upserts the lead's sheet with a fresh TTL.
func (r *DealSheetRepo) Save(ctx context.Context, leadID int64, content json.RawMessage, aiDescription *string, ttl time.Duration) (*domain.DealSheet, error) {
	var d domain.DealSheet
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO deal_sheets (lead_id, content, ai_description, generated_at, expires_at)
		VALUES ($1, $2, $3, NOW(), NOW() + ($4 * INTERVAL '1 second'))
		ON CONFLICT (lead_id) DO UPDATE SET
			content        = EXCLUDED.content,
			ai_description = EXCLUDED.ai_description,
			generated_at   = NOW(),
			expires_at     = NOW() + ($4 * INTERVAL '1 second')
		RETURNING id, lead_id, content, ai_description, generated_at, expires_at
	`, leadID, jsonArg(content), aiDescription, int(ttl.Seconds())).
		Scan(&d.ID, &d.LeadID, &d.Content, &d.AIDescription, &d.GeneratedAt, &d.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("save deal sheet: %w", err)
	}
	return &d, nil
}

// DeleteExpired removes sheets past their TTL by more than the grace
// period, in capped batches. Returns rows deleted.
func (r *DealSheetRepo) DeleteExpired(ctx context.Context, graceDays, batch int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM deal_sheets
		WHERE id IN (
			SELECT id FROM deal_sheets
			WHERE expires_at < NOW() - ($1 * INTERVAL '1 day')
			LIMIT $2
		)
	`, graceDays, batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired deal sheets: %w", err)
	}
	return res.RowsAffected()
}

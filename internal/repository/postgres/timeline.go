package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// TimelineRepo persists the append-only per-lead audit trail.
type TimelineRepo struct{ db *sql.DB }

// NewTimelineRepo creates a Postgres-backed timeline repository.
func NewTimelineRepo(db *sql.DB) *TimelineRepo { return &TimelineRepo{db: db} }

// Append records one event. detail may be any JSON-marshalable value or
// nil.
func (r *TimelineRepo) Append(ctx context.Context, leadID int64, eventType string, detail any) error {
	var payload []byte
	if detail != nil {
		var err error
		payload, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal timeline detail: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_timeline (lead_id, event_type, detail, created_at)
		VALUES ($1, $2, $3, NOW())
	`, leadID, eventType, jsonArg(payload))
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// List returns a lead's events, newest first.
func (r *TimelineRepo) List(ctx context.Context, leadID int64, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lead_id, event_type, detail, created_at
		FROM lead_timeline
		WHERE lead_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.ID, &e.LeadID, &e.EventType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes events past the retention horizon in capped
// batches so the sweep never takes long locks. Returns rows deleted.
func (r *TimelineRepo) DeleteOlderThan(ctx context.Context, days, batch int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM lead_timeline
		WHERE id IN (
			SELECT id FROM lead_timeline
			WHERE created_at < NOW() - ($1 * INTERVAL '1 day')
			LIMIT $2
		)
	`, days, batch)
	if err != nil {
		return 0, fmt.Errorf("delete old timeline events: %w", err)
	}
	return res.RowsAffected()
}

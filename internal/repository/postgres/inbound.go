package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// InboundRepo persists raw inbound SMS messages. The message_sid unique
// index makes webhook replays no-ops.
type InboundRepo struct{ db *sql.DB }

// NewInboundRepo creates a Postgres-backed inbound message repository.
func NewInboundRepo(db *sql.DB) *InboundRepo { return &InboundRepo{db: db} }

// Insert stores a raw inbound message before any processing. A replayed
// MessageSid returns ErrDuplicate without touching the original row.
func (r *InboundRepo) Insert(ctx context.Context, m *domain.InboundMessage) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO inbound_messages (message_sid, from_phone, body, lead_id, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (message_sid) DO NOTHING
		RETURNING id, created_at
	`, m.MessageSid, m.FromPhone, m.Body, m.LeadID, m.OwnerID).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert inbound message: %w", err)
	}
	return nil
}

// MarkProcessed records the classification outcome and attribution once
// the conversation engine has handled the message.
func (r *InboundRepo) MarkProcessed(ctx context.Context, id int64, leadID, ownerID *int64, intent domain.Intent) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE inbound_messages SET lead_id = $2, owner_id = $3, intent = $4, processed_at = NOW()
		WHERE id = $1
	`, id, leadID, ownerID, string(intent))
	if err != nil {
		return fmt.Errorf("mark inbound processed: %w", err)
	}
	return nil
}

// ListRecent returns the latest inbound messages, newest first.
func (r *InboundRepo) ListRecent(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_sid, from_phone, body, lead_id, owner_id, intent, processed_at, created_at
		FROM inbound_messages
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbound messages: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundMessage
	for rows.Next() {
		var (
			m      domain.InboundMessage
			intent sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.MessageSid, &m.FromPhone, &m.Body, &m.LeadID, &m.OwnerID, &intent, &m.ProcessedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inbound message: %w", err)
		}
		if intent.Valid {
			i := domain.Intent(intent.String)
			m.Intent = &i
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/domain"
)

// AttemptRepo persists outbound send attempts. The idempotency_key unique
// index is what makes reserve-then-execute safe across crashes and racing
// workers.
type AttemptRepo struct{ db *sql.DB }

// NewAttemptRepo creates a Postgres-backed attempt repository.
func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{db: db} }

const attemptColumns = `id, lead_id, idempotency_key, channel, message_body, message_context,
	status, result, external_id, sent_at, delivered_at, response_received_at, response_body,
	reply_classification, error_message, created_at, updated_at`

func scanAttempt(row interface{ Scan(...any) error }) (*domain.OutreachAttempt, error) {
	var (
		a   domain.OutreachAttempt
		cls sql.NullString
	)
	err := row.Scan(&a.ID, &a.LeadID, &a.IdempotencyKey, &a.Channel, &a.MessageBody, &a.MessageContext,
		&a.Status, &a.Result, &a.ExternalID, &a.SentAt, &a.DeliveredAt, &a.ResponseReceivedAt, &a.ResponseBody,
		&cls, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cls.Valid {
		c := domain.ReplyClassification(cls.String)
		a.ReplyClassification = &c
	}
	return &a, nil
}

// Reserve inserts a pending attempt holding the idempotency key. When the
// key is already taken it returns the existing attempt and ErrDuplicate,
// so the caller can surface "already sent" instead of sending again.
func (r *AttemptRepo) Reserve(ctx context.Context, a *domain.OutreachAttempt) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO outreach_attempts (lead_id, idempotency_key, channel, message_body, message_context, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, a.LeadID, a.IdempotencyKey, a.Channel, a.MessageBody, string(a.MessageContext)).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err == nil {
		a.Status = domain.AttemptPending
		return nil
	}
	if !IsUniqueViolation(err) {
		return fmt.Errorf("reserve attempt: %w", err)
	}

	existing, getErr := r.GetByKey(ctx, *a.IdempotencyKey)
	if getErr != nil {
		return fmt.Errorf("reserve attempt: fetch racing row: %w", getErr)
	}
	*a = *existing
	return ErrDuplicate
}

// GetByKey loads an attempt by idempotency key.
func (r *AttemptRepo) GetByKey(ctx context.Context, key string) (*domain.OutreachAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt by key: %w", err)
	}
	return a, nil
}

// Get loads an attempt by id.
func (r *AttemptRepo) Get(ctx context.Context, id int64) (*domain.OutreachAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// Finalize records the gateway outcome on a reserved attempt. It runs in
// its own transaction, after the external call, so a crash in between
// leaves the slot reserved rather than double-sent.
func (r *AttemptRepo) Finalize(ctx context.Context, id int64, status domain.AttemptStatus, result string, externalID, errMsg *string, sentAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET
			status        = $2,
			result        = $3,
			external_id   = $4,
			error_message = $5,
			sent_at       = $6,
			updated_at    = NOW()
		WHERE id = $1
	`, id, string(status), result, externalID, errMsg, sentAt)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	return nil
}

// SetBody updates the reserved attempt's message body once generation has
// produced it.
func (r *AttemptRepo) SetBody(ctx context.Context, id int64, body string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outreach_attempts SET message_body = $2, updated_at = NOW() WHERE id = $1`, id, body)
	if err != nil {
		return fmt.Errorf("set attempt body: %w", err)
	}
	return nil
}

// MarkDelivered stamps delivery confirmation from the status webhook.
func (r *AttemptRepo) MarkDelivered(ctx context.Context, externalID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET delivered_at = $2, updated_at = NOW()
		WHERE external_id = $1 AND delivered_at IS NULL
	`, externalID, at)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkUndelivered records a post-accept delivery failure reported by the
// status webhook.
func (r *AttemptRepo) MarkUndelivered(ctx context.Context, externalID, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET status = 'failed', result = $2, error_message = $3, updated_at = NOW()
		WHERE external_id = $1
	`, externalID, domain.ResultDeliveryFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark undelivered: %w", err)
	}
	return nil
}

// RecordResponse attaches an inbound reply to the lead's most recent sent
// attempt, if one exists.
func (r *AttemptRepo) RecordResponse(ctx context.Context, leadID int64, body string, cls domain.ReplyClassification) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outreach_attempts SET
			response_received_at = NOW(),
			response_body        = $2,
			reply_classification = $3,
			updated_at           = NOW()
		WHERE id = (
			SELECT id FROM outreach_attempts
			WHERE lead_id = $1 AND status = 'sent'
			ORDER BY sent_at DESC NULLS LAST, id DESC
			LIMIT 1
		)
	`, leadID, body, string(cls))
	if err != nil {
		return fmt.Errorf("record response: %w", err)
	}
	return nil
}

// ListForLead returns a lead's attempts, newest first.
func (r *AttemptRepo) ListForLead(ctx context.Context, leadID int64, limit int) ([]domain.OutreachAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM outreach_attempts
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// LastSentAt returns when the lead last had a message go out (live or
// dry-run), or nil if it never has. Drives the per-lead cooldown.
func (r *AttemptRepo) LastSentAt(ctx context.Context, leadID int64) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM outreach_attempts
		WHERE lead_id = $1 AND status IN ('sent', 'dry_run')
	`, leadID).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("last sent at: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

// LastSentBody returns the body of the lead's most recent outbound
// message, or "" if none was ever sent. Gives the reply classifier the
// question the owner is answering.
func (r *AttemptRepo) LastSentBody(ctx context.Context, leadID int64) (string, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `
		SELECT message_body FROM outreach_attempts
		WHERE lead_id = $1 AND status IN ('sent', 'dry_run')
		ORDER BY sent_at DESC NULLS LAST, id DESC
		LIMIT 1
	`, leadID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last sent body: %w", err)
	}
	return body, nil
}

// CountSentSince counts sends (live and dry-run) recorded at or after the
// cutoff. The daily SMS budget falls back to this when Redis is not
// configured, and dry runs consume budget so staging behaves like prod.
func (r *AttemptRepo) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outreach_attempts
		WHERE status IN ('sent', 'dry_run') AND sent_at >= $1
	`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sent since: %w", err)
	}
	return n, nil
}

// CountByResultSince returns result → count for attempts created at or
// after the cutoff. Feeds the stats endpoint.
func (r *AttemptRepo) CountByResultSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(result, 'pending'), COUNT(*)
		FROM outreach_attempts
		WHERE created_at >= $1
		GROUP BY 1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count attempts by result: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var result string
		var count int
		if err := rows.Scan(&result, &count); err != nil {
			return nil, fmt.Errorf("scan result count: %w", err)
		}
		out[result] = count
	}
	return out, rows.Err()
}

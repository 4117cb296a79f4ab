package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/acreage/leadline/internal/domain"
)

// AlertConfigRepo persists per-market alerting policy.
type AlertConfigRepo struct{ db *sql.DB }

// NewAlertConfigRepo creates a Postgres-backed alert config repository.
func NewAlertConfigRepo(db *sql.DB) *AlertConfigRepo { return &AlertConfigRepo{db: db} }

const alertConfigColumns = `id, market_code, enabled, hot_score_threshold, sms_recipients,
	slack_channel, email_recipients, dedup_hours, created_at, updated_at`

func scanAlertConfig(row interface{ Scan(...any) error }) (*domain.AlertConfig, error) {
	var c domain.AlertConfig
	err := row.Scan(&c.ID, &c.MarketCode, &c.Enabled, &c.HotScoreThreshold, pq.Array(&c.SMSRecipients),
		&c.SlackChannel, pq.Array(&c.EmailRecipients), &c.DedupHours, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByMarket loads the alert policy for a market.
func (r *AlertConfigRepo) GetByMarket(ctx context.Context, marketCode string) (*domain.AlertConfig, error) {
	c, err := scanAlertConfig(r.db.QueryRowContext(ctx,
		`SELECT `+alertConfigColumns+` FROM alert_configs WHERE market_code = $1`, marketCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert config: %w", err)
	}
	return c, nil
}

// Upsert creates or replaces a market's alert policy.
func (r *AlertConfigRepo) Upsert(ctx context.Context, c *domain.AlertConfig) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO alert_configs (market_code, enabled, hot_score_threshold, sms_recipients,
			slack_channel, email_recipients, dedup_hours, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (market_code) DO UPDATE SET
			enabled             = EXCLUDED.enabled,
			hot_score_threshold = EXCLUDED.hot_score_threshold,
			sms_recipients      = EXCLUDED.sms_recipients,
			slack_channel       = EXCLUDED.slack_channel,
			email_recipients    = EXCLUDED.email_recipients,
			dedup_hours         = EXCLUDED.dedup_hours,
			updated_at          = NOW()
		RETURNING id, created_at, updated_at
	`, c.MarketCode, c.Enabled, c.HotScoreThreshold, pq.Array(c.SMSRecipients),
		c.SlackChannel, pq.Array(c.EmailRecipients), c.DedupHours).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert alert config: %w", err)
	}
	return nil
}

// List returns every market's alert policy.
func (r *AlertConfigRepo) List(ctx context.Context) ([]domain.AlertConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertConfigColumns+` FROM alert_configs ORDER BY market_code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list alert configs: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertConfig
	for rows.Next() {
		c, err := scanAlertConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert config: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

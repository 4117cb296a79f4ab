package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// PartyRepo persists canonical owner identities.
type PartyRepo struct{ db *sql.DB }

// NewPartyRepo creates a Postgres-backed party repository.
func NewPartyRepo(db *sql.DB) *PartyRepo { return &PartyRepo{db: db} }

// Upsert inserts a party keyed by match hash, or refreshes the display
// fields of the existing row. Either way it fills p.ID.
func (r *PartyRepo) Upsert(ctx context.Context, p *domain.Party) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO parties (match_hash, normalized_name, normalized_zip, display_name, raw_mailing_address, market_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (match_hash) DO UPDATE SET
			display_name        = EXCLUDED.display_name,
			raw_mailing_address = COALESCE(EXCLUDED.raw_mailing_address, parties.raw_mailing_address),
			updated_at          = NOW()
		RETURNING id, created_at, updated_at
	`, p.MatchHash, p.NormalizedName, p.NormalizedZip, p.DisplayName, p.RawMailingAddress, p.MarketCode).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert party: %w", err)
	}
	return nil
}

const partyColumns = `id, match_hash, normalized_name, normalized_zip, display_name, raw_mailing_address, mailing_deliverable, mailing_verified_at, market_code, created_at, updated_at`

func scanParty(row interface{ Scan(...any) error }) (*domain.Party, error) {
	var p domain.Party
	err := row.Scan(&p.ID, &p.MatchHash, &p.NormalizedName, &p.NormalizedZip, &p.DisplayName,
		&p.RawMailingAddress, &p.MailingDeliverable, &p.MailingVerifiedAt, &p.MarketCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get loads a party by id.
func (r *PartyRepo) Get(ctx context.Context, id int64) (*domain.Party, error) {
	p, err := scanParty(r.db.QueryRowContext(ctx, `
		SELECT `+partyColumns+` FROM parties WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get party: %w", err)
	}
	return p, nil
}

// GetByMatchHash loads a party by its dedup hash.
func (r *PartyRepo) GetByMatchHash(ctx context.Context, hash string) (*domain.Party, error) {
	p, err := scanParty(r.db.QueryRowContext(ctx, `
		SELECT `+partyColumns+` FROM parties WHERE match_hash = $1
	`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get party by hash: %w", err)
	}
	return p, nil
}

// ListUnverifiedMailing returns parties holding a mailing address the
// verifier has not seen yet, oldest first, capped at limit.
func (r *PartyRepo) ListUnverifiedMailing(ctx context.Context, marketCode string, limit int) ([]domain.Party, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+partyColumns+`
		FROM parties
		WHERE market_code = $1 AND raw_mailing_address IS NOT NULL AND mailing_verified_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, marketCode, limit)
	if err != nil {
		return nil, fmt.Errorf("list unverified parties: %w", err)
	}
	defer rows.Close()

	var out []domain.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// SetMailingVerification records a delivery point validation result.
// standardized, when present, replaces the raw mailing address with the
// verifier's corrected form.
func (r *PartyRepo) SetMailingVerification(ctx context.Context, id int64, deliverable bool, standardized *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE parties SET
			mailing_deliverable = $2,
			mailing_verified_at = NOW(),
			raw_mailing_address = COALESCE($3, raw_mailing_address),
			updated_at          = NOW()
		WHERE id = $1
	`, id, deliverable, standardized)
	if err != nil {
		return fmt.Errorf("set mailing verification: %w", err)
	}
	return nil
}

// Count returns the total number of parties.
func (r *PartyRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parties`).Scan(&n)
	return n, err
}

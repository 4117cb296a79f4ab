package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// OwnerRepo persists contact channels bound to parties.
type OwnerRepo struct{ db *sql.DB }

// NewOwnerRepo creates a Postgres-backed owner repository.
func NewOwnerRepo(db *sql.DB) *OwnerRepo { return &OwnerRepo{db: db} }

const ownerColumns = `id, party_id, phone_primary, email, is_tcpa_safe, is_dnr, opt_out, opt_out_at, created_at, updated_at`

func scanOwner(row interface{ Scan(...any) error }) (*domain.Owner, error) {
	var o domain.Owner
	err := row.Scan(&o.ID, &o.PartyID, &o.PhonePrimary, &o.Email, &o.IsTCPASafe, &o.IsDNR, &o.OptOut, &o.OptOutAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Upsert inserts the owner row for a party, or merges new contact data
// into the existing row. Fresh data only ever fills gaps: a non-null
// stored phone or email is never overwritten, and opt_out / is_dnr are
// never touched here, so a re-ingest can never resurrect a contact.
func (r *OwnerRepo) Upsert(ctx context.Context, o *domain.Owner) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO owners (party_id, phone_primary, email, is_tcpa_safe, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (party_id) DO UPDATE SET
			phone_primary = COALESCE(owners.phone_primary, EXCLUDED.phone_primary),
			email         = COALESCE(owners.email, EXCLUDED.email),
			updated_at    = NOW()
		RETURNING `+ownerColumns, o.PartyID, o.PhonePrimary, o.Email, o.IsTCPASafe).
		Scan(&o.ID, &o.PartyID, &o.PhonePrimary, &o.Email, &o.IsTCPASafe, &o.IsDNR, &o.OptOut, &o.OptOutAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

// Get loads an owner by id.
func (r *OwnerRepo) Get(ctx context.Context, id int64) (*domain.Owner, error) {
	o, err := scanOwner(r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return o, nil
}

// GetByPhone resolves an owner from a normalized E.164 phone number.
// Inbound webhooks use this to route replies.
func (r *OwnerRepo) GetByPhone(ctx context.Context, phone string) (*domain.Owner, error) {
	o, err := scanOwner(r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE phone_primary = $1 ORDER BY updated_at DESC LIMIT 1`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owner by phone: %w", err)
	}
	return o, nil
}

// SetOptOut marks the owner opted out. Monotonic: there is no inverse
// operation in this repository.
func (r *OwnerRepo) SetOptOut(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE owners SET opt_out = true, opt_out_at = COALESCE(opt_out_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("set opt out: %w", err)
	}
	return nil
}

// SetDNR flags the owner do-not-contact. Monotonic, like opt-out.
func (r *OwnerRepo) SetDNR(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE owners SET is_dnr = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set dnr: %w", err)
	}
	return nil
}

// SetPhone records a verified phone number and its TCPA mobile judgment.
func (r *OwnerRepo) SetPhone(ctx context.Context, id int64, phone string, tcpaSafe bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE owners SET phone_primary = $2, is_tcpa_safe = $3, updated_at = NOW() WHERE id = $1
	`, id, phone, tcpaSafe)
	if err != nil {
		return fmt.Errorf("set phone: %w", err)
	}
	return nil
}

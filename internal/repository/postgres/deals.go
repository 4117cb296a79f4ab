package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// DealRepo persists buyer↔lead pairings.
type DealRepo struct{ db *sql.DB }

// NewDealRepo creates a Postgres-backed buyer-deal repository.
func NewDealRepo(db *sql.DB) *DealRepo { return &DealRepo{db: db} }

const dealColumns = `id, buyer_id, lead_id, stage, match_score, blast_sent_at, created_at, updated_at`

func scanDeal(row interface{ Scan(...any) error }) (*domain.BuyerDeal, error) {
	var d domain.BuyerDeal
	err := row.Scan(&d.ID, &d.BuyerID, &d.LeadID, &d.Stage, &d.MatchScore, &d.BlastSentAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Upsert creates the pairing or refreshes its match score, returning the
// row either way. BlastSentAt on the returned deal tells the blast loop
// whether this buyer already received the deal.
func (r *DealRepo) Upsert(ctx context.Context, buyerID, leadID int64, matchScore int) (*domain.BuyerDeal, error) {
	d, err := scanDeal(r.db.QueryRowContext(ctx, `
		INSERT INTO buyer_deals (buyer_id, lead_id, stage, match_score, created_at, updated_at)
		VALUES ($1, $2, 'NEW', $3, NOW(), NOW())
		ON CONFLICT (buyer_id, lead_id) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			updated_at  = NOW()
		RETURNING `+dealColumns, buyerID, leadID, matchScore))
	if err != nil {
		return nil, fmt.Errorf("upsert buyer deal: %w", err)
	}
	return d, nil
}

// Get loads a pairing by (buyer, lead).
func (r *DealRepo) Get(ctx context.Context, buyerID, leadID int64) (*domain.BuyerDeal, error) {
	d, err := scanDeal(r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM buyer_deals WHERE buyer_id = $1 AND lead_id = $2`, buyerID, leadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get buyer deal: %w", err)
	}
	return d, nil
}

// MarkBlastSent stamps the pairing as blasted and moves it to DEAL_SENT.
func (r *DealRepo) MarkBlastSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE buyer_deals SET stage = 'DEAL_SENT', blast_sent_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark blast sent: %w", err)
	}
	return nil
}

// SetStage advances a pairing through the deal funnel.
func (r *DealRepo) SetStage(ctx context.Context, id int64, stage domain.DealStage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE buyer_deals SET stage = $2, updated_at = NOW() WHERE id = $1`, id, string(stage))
	if err != nil {
		return fmt.Errorf("set deal stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForLead returns every pairing for a lead, best match first.
func (r *DealRepo) ListForLead(ctx context.Context, leadID int64) ([]domain.BuyerDeal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dealColumns+` FROM buyer_deals
		WHERE lead_id = $1
		ORDER BY match_score DESC, id ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list deals for lead: %w", err)
	}
	defer rows.Close()

	var out []domain.BuyerDeal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buyer deal: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/acreage/leadline/internal/domain"
)

// BuyerRepo persists cash buyers and their matching criteria.
type BuyerRepo struct{ db *sql.DB }

// NewBuyerRepo creates a Postgres-backed buyer repository.
func NewBuyerRepo(db *sql.DB) *BuyerRepo { return &BuyerRepo{db: db} }

const buyerColumns = `id, name, phone, email, market_codes, counties, min_acres, max_acres,
	price_min, price_max, vip, pof_verified, target_spread, deals_count, last_deal_sent_at,
	created_at, updated_at`

func scanBuyer(row interface{ Scan(...any) error }) (*domain.Buyer, error) {
	var b domain.Buyer
	err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Email, pq.Array(&b.MarketCodes), pq.Array(&b.Counties),
		&b.MinAcres, &b.MaxAcres, &b.PriceMin, &b.PriceMax, &b.VIP, &b.POFVerified, &b.TargetSpread,
		&b.DealsCount, &b.LastDealSentAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a buyer and fills its id.
func (r *BuyerRepo) Create(ctx context.Context, b *domain.Buyer) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO buyers (name, phone, email, market_codes, counties, min_acres, max_acres,
			price_min, price_max, vip, pof_verified, target_spread, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, b.Name, b.Phone, b.Email, pq.Array(b.MarketCodes), pq.Array(b.Counties), b.MinAcres, b.MaxAcres,
		b.PriceMin, b.PriceMax, b.VIP, b.POFVerified, b.TargetSpread).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create buyer: %w", err)
	}
	return nil
}

// Update rewrites a buyer's criteria in place.
func (r *BuyerRepo) Update(ctx context.Context, b *domain.Buyer) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE buyers SET
			name = $2, phone = $3, email = $4, market_codes = $5, counties = $6,
			min_acres = $7, max_acres = $8, price_min = $9, price_max = $10,
			vip = $11, pof_verified = $12, target_spread = $13, updated_at = NOW()
		WHERE id = $1
	`, b.ID, b.Name, b.Phone, b.Email, pq.Array(b.MarketCodes), pq.Array(b.Counties),
		b.MinAcres, b.MaxAcres, b.PriceMin, b.PriceMax, b.VIP, b.POFVerified, b.TargetSpread)
	if err != nil {
		return fmt.Errorf("update buyer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads a buyer by id.
func (r *BuyerRepo) Get(ctx context.Context, id int64) (*domain.Buyer, error) {
	b, err := scanBuyer(r.db.QueryRowContext(ctx,
		`SELECT `+buyerColumns+` FROM buyers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get buyer: %w", err)
	}
	return b, nil
}

// ListByMarket returns buyers whose market list contains the code,
// VIPs first. The matcher scores these.
func (r *BuyerRepo) ListByMarket(ctx context.Context, marketCode string) ([]domain.Buyer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+buyerColumns+` FROM buyers
		WHERE $1 = ANY(market_codes)
		ORDER BY vip DESC, deals_count DESC, id ASC
	`, marketCode)
	if err != nil {
		return nil, fmt.Errorf("list buyers by market: %w", err)
	}
	return collectBuyers(rows)
}

// List returns all buyers, newest first.
func (r *BuyerRepo) List(ctx context.Context, limit, offset int) ([]domain.Buyer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+buyerColumns+` FROM buyers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	return collectBuyers(rows)
}

// RecordDealSent bumps the buyer's deal counter after a successful blast.
func (r *BuyerRepo) RecordDealSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE buyers SET deals_count = deals_count + 1, last_deal_sent_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("record deal sent: %w", err)
	}
	return nil
}

func collectBuyers(rows *sql.Rows) ([]domain.Buyer, error) {
	defer rows.Close()
	var out []domain.Buyer
	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buyer: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

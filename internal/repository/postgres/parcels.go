package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// ParcelRepo persists physical properties keyed by canonical parcel id.
type ParcelRepo struct{ db *sql.DB }

// NewParcelRepo creates a Postgres-backed parcel repository.
func NewParcelRepo(db *sql.DB) *ParcelRepo { return &ParcelRepo{db: db} }

const parcelColumns = `id, canonical_parcel_id, parish, market_code, situs_address, city, state, postal_code,
	lat, lng, zoning, geometry, land_assessed_value, improvement_assessed_value, lot_size_acres,
	is_adjudicated, years_tax_delinquent, raw_data, created_at, updated_at`

func scanParcel(row interface{ Scan(...any) error }) (*domain.Parcel, error) {
	var p domain.Parcel
	err := row.Scan(&p.ID, &p.CanonicalParcelID, &p.Parish, &p.MarketCode, &p.SitusAddress, &p.City, &p.State, &p.PostalCode,
		&p.Lat, &p.Lng, &p.Zoning, &p.Geometry, &p.LandAssessedValue, &p.ImprovementAssessedValue, &p.LotSizeAcres,
		&p.IsAdjudicated, &p.YearsTaxDelinquent, &p.RawData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts a parcel keyed by canonical id, or refreshes the existing
// row with the latest roll data. Assessment figures from the new roll win
// when present; nulls in the new roll keep the stored value.
func (r *ParcelRepo) Upsert(ctx context.Context, p *domain.Parcel) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO parcels (canonical_parcel_id, parish, market_code, situs_address, city, state, postal_code,
			lat, lng, zoning, geometry, land_assessed_value, improvement_assessed_value, lot_size_acres,
			is_adjudicated, years_tax_delinquent, raw_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		ON CONFLICT (canonical_parcel_id) DO UPDATE SET
			situs_address              = COALESCE(EXCLUDED.situs_address, parcels.situs_address),
			city                       = COALESCE(EXCLUDED.city, parcels.city),
			state                      = COALESCE(EXCLUDED.state, parcels.state),
			postal_code                = COALESCE(EXCLUDED.postal_code, parcels.postal_code),
			land_assessed_value        = COALESCE(EXCLUDED.land_assessed_value, parcels.land_assessed_value),
			improvement_assessed_value = COALESCE(EXCLUDED.improvement_assessed_value, parcels.improvement_assessed_value),
			lot_size_acres             = COALESCE(EXCLUDED.lot_size_acres, parcels.lot_size_acres),
			is_adjudicated             = EXCLUDED.is_adjudicated,
			years_tax_delinquent       = EXCLUDED.years_tax_delinquent,
			raw_data                   = COALESCE(EXCLUDED.raw_data, parcels.raw_data),
			updated_at                 = NOW()
		RETURNING id, created_at, updated_at
	`, p.CanonicalParcelID, p.Parish, p.MarketCode, p.SitusAddress, p.City, p.State, p.PostalCode,
		p.Lat, p.Lng, p.Zoning, jsonArg(p.Geometry), p.LandAssessedValue, p.ImprovementAssessedValue, p.LotSizeAcres,
		p.IsAdjudicated, p.YearsTaxDelinquent, jsonArg(p.RawData)).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert parcel: %w", err)
	}
	return nil
}

// Get loads a parcel by id.
func (r *ParcelRepo) Get(ctx context.Context, id int64) (*domain.Parcel, error) {
	p, err := scanParcel(r.db.QueryRowContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get parcel: %w", err)
	}
	return p, nil
}

// GetByCanonicalID loads a parcel by its stable external key.
func (r *ParcelRepo) GetByCanonicalID(ctx context.Context, canonicalID string) (*domain.Parcel, error) {
	p, err := scanParcel(r.db.QueryRowContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE canonical_parcel_id = $1`, canonicalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get parcel by canonical id: %w", err)
	}
	return p, nil
}

// SetCoordinates stores geocoded coordinates for a parcel.
func (r *ParcelRepo) SetCoordinates(ctx context.Context, id int64, lat, lng float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE parcels SET lat = $2, lng = $3, updated_at = NOW() WHERE id = $1`, id, lat, lng)
	if err != nil {
		return fmt.Errorf("set coordinates: %w", err)
	}
	return nil
}

// SetSitusAddress stores a standardized situs address.
func (r *ParcelRepo) SetSitusAddress(ctx context.Context, id int64, address, city, state, zip string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE parcels SET situs_address = $2, city = $3, state = $4, postal_code = $5, updated_at = NOW()
		WHERE id = $1
	`, id, address, city, state, zip)
	if err != nil {
		return fmt.Errorf("set situs address: %w", err)
	}
	return nil
}

// ListMissingCoordinates returns parcels that still need geocoding, oldest
// first, capped at limit. The enrichment step works through these.
func (r *ParcelRepo) ListMissingCoordinates(ctx context.Context, marketCode string, limit int) ([]domain.Parcel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+parcelColumns+`
		FROM parcels
		WHERE market_code = $1 AND lat IS NULL AND situs_address IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, marketCode, limit)
	if err != nil {
		return nil, fmt.Errorf("list parcels missing coordinates: %w", err)
	}
	defer rows.Close()

	var out []domain.Parcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parcel: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Count returns the total number of parcels in a market. Empty market
// counts everything.
func (r *ParcelRepo) Count(ctx context.Context, marketCode string) (int64, error) {
	var n int64
	var err error
	if marketCode == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parcels`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parcels WHERE market_code = $1`, marketCode).Scan(&n)
	}
	return n, err
}

package domain

import (
	"encoding/json"
	"time"
)

// Parcel is one physical property as assembled from county rolls. The
// CanonicalParcelID is the stable external key: reingesting the same roll
// must resolve to the same row.
type Parcel struct {
	ID                int64   `json:"id" db:"id"`
	CanonicalParcelID string  `json:"canonical_parcel_id" db:"canonical_parcel_id"`
	Parish            string  `json:"parish" db:"parish"`
	MarketCode        string  `json:"market_code" db:"market_code"`
	SitusAddress      *string `json:"situs_address,omitempty" db:"situs_address"`
	City              *string `json:"city,omitempty" db:"city"`
	State             *string `json:"state,omitempty" db:"state"`
	PostalCode        *string `json:"postal_code,omitempty" db:"postal_code"`

	Lat      *float64        `json:"lat,omitempty" db:"lat"`
	Lng      *float64        `json:"lng,omitempty" db:"lng"`
	Zoning   *string         `json:"zoning,omitempty" db:"zoning"`
	Geometry json.RawMessage `json:"geometry,omitempty" db:"geometry"`

	LandAssessedValue        *float64 `json:"land_assessed_value,omitempty" db:"land_assessed_value"`
	ImprovementAssessedValue *float64 `json:"improvement_assessed_value,omitempty" db:"improvement_assessed_value"`
	LotSizeAcres             *float64 `json:"lot_size_acres,omitempty" db:"lot_size_acres"`

	IsAdjudicated      bool `json:"is_adjudicated" db:"is_adjudicated"`
	YearsTaxDelinquent int  `json:"years_tax_delinquent" db:"years_tax_delinquent"`

	RawData   json.RawMessage `json:"raw_data,omitempty" db:"raw_data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// VacantLand reports whether the parcel carries no meaningful improvement
// value. Parcels with no improvement figure at all count as vacant.
func (p *Parcel) VacantLand() bool {
	return p.ImprovementAssessedValue == nil || *p.ImprovementAssessedValue <= 0
}

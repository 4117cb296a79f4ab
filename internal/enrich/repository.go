package enrich

import (
	"context"

	"github.com/acreage/leadline/internal/domain"
)

// ParcelStore is the slice of the parcel repository enrichment writes.
type ParcelStore interface {
	ListMissingCoordinates(ctx context.Context, marketCode string, limit int) ([]domain.Parcel, error)
	SetCoordinates(ctx context.Context, id int64, lat, lng float64) error
}

// PartyStore is the slice of the party repository enrichment writes.
type PartyStore interface {
	ListUnverifiedMailing(ctx context.Context, marketCode string, limit int) ([]domain.Party, error)
	SetMailingVerification(ctx context.Context, id int64, deliverable bool, standardized *string) error
}

// Stores bundles the repositories the enrichment pass needs.
type Stores struct {
	Parcels ParcelStore
	Parties PartyStore
}

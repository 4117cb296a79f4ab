package resolve

import (
	"context"

	"github.com/acreage/leadline/internal/domain"
)

// ParcelStore is the parcel persistence contract the resolver needs.
type ParcelStore interface {
	// Upsert inserts the parcel or merges it onto the existing row with
	// the same canonical id, filling p.ID either way.
	Upsert(ctx context.Context, p *domain.Parcel) error
}

// PartyStore is the party persistence contract the resolver needs.
type PartyStore interface {
	// Upsert inserts the party or reuses the existing row with the same
	// match hash, filling p.ID either way.
	Upsert(ctx context.Context, p *domain.Party) error
}

// OwnerStore is the owner persistence contract the resolver needs.
type OwnerStore interface {
	// Upsert ensures a single owner row per party. Contact fields fill
	// gaps only; opt-out and DNR flags are never touched here.
	Upsert(ctx context.Context, o *domain.Owner) error
}

// LeadStore is the lead persistence contract the resolver needs.
type LeadStore interface {
	// Upsert ensures one lead per (owner, parcel) pair, reporting whether
	// a new lead was created.
	Upsert(ctx context.Context, ownerID, parcelID int64, marketCode string) (*domain.Lead, bool, error)
}

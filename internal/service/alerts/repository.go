package alerts

import (
	"context"

	"github.com/acreage/leadline/internal/domain"
)

// LeadStore is the lead access the alert service needs.
type LeadStore interface {
	Get(ctx context.Context, id int64) (*domain.Lead, error)
	ListHotUnalerted(ctx context.Context, marketCode string, minScore, dedupHours, limit int) ([]domain.Lead, error)
	TouchAlerted(ctx context.Context, id int64) error
}

// OwnerStore loads the owner behind an alerted lead.
type OwnerStore interface {
	Get(ctx context.Context, id int64) (*domain.Owner, error)
}

// ParcelStore loads the parcel for alert copy. Missing parcels degrade
// the copy, never the alert.
type ParcelStore interface {
	Get(ctx context.Context, id int64) (*domain.Parcel, error)
}

// PartyStore resolves the owner's display name.
type PartyStore interface {
	Get(ctx context.Context, id int64) (*domain.Party, error)
}

// ConfigStore loads per-market alert policy.
type ConfigStore interface {
	GetByMarket(ctx context.Context, marketCode string) (*domain.AlertConfig, error)
}

// Stores bundles the persistence the alert service touches.
type Stores struct {
	Leads   LeadStore
	Owners  OwnerStore
	Parcels ParcelStore
	Parties PartyStore
	Configs ConfigStore
}

// Sink is one delivery channel. Configured reports whether the market's
// policy gives this sink anywhere to deliver; Send must respect ctx,
// which carries the per-sink timeout.
type Sink interface {
	Name() string
	Configured(cfg *domain.AlertConfig) bool
	Send(ctx context.Context, cfg *domain.AlertConfig, a Alert) error
}

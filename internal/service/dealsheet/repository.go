package dealsheet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/acreage/leadline/internal/domain"
)

// LeadStore loads the lead a sheet describes.
type LeadStore interface {
	Get(ctx context.Context, id int64) (*domain.Lead, error)
}

// ParcelStore loads the parcel behind the lead. A missing parcel still
// produces a sheet, just one that cannot make an offer.
type ParcelStore interface {
	Get(ctx context.Context, id int64) (*domain.Parcel, error)
}

// SheetStore is the cache. Get returns sheets regardless of freshness.
type SheetStore interface {
	Get(ctx context.Context, leadID int64) (*domain.DealSheet, error)
	Save(ctx context.Context, leadID int64, content json.RawMessage, aiDescription *string, ttl time.Duration) (*domain.DealSheet, error)
}

// CompsSource summarizes recent sales for a parish and acreage band.
// The warehouse adapter satisfies it; a nil source degrades the sheet to
// comps_unavailable.
type CompsSource interface {
	Summary(ctx context.Context, parish string, acres float64) (*domain.CompsSummary, error)
}

// Describer writes the optional buyer-facing deal description. The LLM
// client satisfies it.
type Describer interface {
	DescribeDeal(ctx context.Context, facts string) (string, error)
}

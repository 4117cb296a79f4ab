package domain

import (
	"encoding/json"
	"time"
)

// DealSheet is the cached, renderable summary of a lead's deal: offer
// range, comps, owner situation. Regenerated after ExpiresAt.
type DealSheet struct {
	ID            int64           `json:"id" db:"id"`
	LeadID        int64           `json:"lead_id" db:"lead_id"`
	Content       json.RawMessage `json:"content" db:"content"`
	AIDescription *string         `json:"ai_description,omitempty" db:"ai_description"`
	GeneratedAt   time.Time       `json:"generated_at" db:"generated_at"`
	ExpiresAt     time.Time       `json:"expires_at" db:"expires_at"`
}

// Fresh reports whether the sheet is still within its TTL.
func (d *DealSheet) Fresh(now time.Time) bool {
	return now.Before(d.ExpiresAt)
}

// CompsSummary aggregates recent land sales near a parcel. Dollar figures
// are per acre.
type CompsSummary struct {
	Count         int     `json:"count"`
	MedianPerAcre float64 `json:"median_per_acre"`
	LowPerAcre    float64 `json:"low_per_acre"`
	HighPerAcre   float64 `json:"high_per_acre"`
}

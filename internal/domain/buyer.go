package domain

import "time"

// Buyer is a cash buyer who receives deal blasts for matching leads.
// Markets and counties are inclusion filters: an empty county list means
// "anywhere in the market".
type Buyer struct {
	ID          int64    `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Phone       *string  `json:"phone,omitempty" db:"phone"`
	Email       *string  `json:"email,omitempty" db:"email"`
	MarketCodes []string `json:"market_codes" db:"market_codes"`
	Counties    []string `json:"counties,omitempty" db:"counties"`

	MinAcres *float64 `json:"min_acres,omitempty" db:"min_acres"`
	MaxAcres *float64 `json:"max_acres,omitempty" db:"max_acres"`
	PriceMin *float64 `json:"price_min,omitempty" db:"price_min"`
	PriceMax *float64 `json:"price_max,omitempty" db:"price_max"`

	VIP          bool     `json:"vip" db:"vip"`
	POFVerified  bool     `json:"pof_verified" db:"pof_verified"`
	TargetSpread *float64 `json:"target_spread,omitempty" db:"target_spread"`

	DealsCount     int        `json:"deals_count" db:"deals_count"`
	LastDealSentAt *time.Time `json:"last_deal_sent_at,omitempty" db:"last_deal_sent_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// DealStage enumerates the lifecycle of a buyer-deal pairing.
type DealStage string

const (
	DealNew       DealStage = "NEW"
	DealSent      DealStage = "DEAL_SENT"
	DealViewed    DealStage = "VIEWED"
	DealResponded DealStage = "RESPONDED"
	DealClosed    DealStage = "CLOSED"
)

// BuyerDeal links one buyer to one lead. The (BuyerID, LeadID) pair is
// unique; BlastSentAt set means the buyer already received this deal and
// blasts must skip it.
type BuyerDeal struct {
	ID          int64      `json:"id" db:"id"`
	BuyerID     int64      `json:"buyer_id" db:"buyer_id"`
	LeadID      int64      `json:"lead_id" db:"lead_id"`
	Stage       DealStage  `json:"stage" db:"stage"`
	MatchScore  int        `json:"match_score" db:"match_score"`
	BlastSentAt *time.Time `json:"blast_sent_at,omitempty" db:"blast_sent_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

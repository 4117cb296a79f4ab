package dealsheet

import (
	"math"

	"github.com/acreage/leadline/internal/domain"
)

// Offer math constants. The base band says we open between 55% and 70%
// of assessed land value; the adjustments push the band around for lot
// size and distress, clamped so an offer never drops below 30% or climbs
// past 95% of value.
const (
	baseDiscountLow  = 0.55
	baseDiscountHigh = 0.70

	smallLotBonus      = 0.05 // under 1 acre
	largeLotPenalty    = 0.05 // over 10 acres
	adjudicatedPenalty = 0.15
	delinquentPerYear  = 0.02
	delinquentCap      = 0.10

	discountFloor = 0.30
	discountCeil  = 0.95

	offerFloorLow  = 500
	offerFloorHigh = 1000
)

// OfferParams overrides the base discount band. Zero values keep the
// defaults; adjustments and clamps apply either way.
type OfferParams struct {
	DiscountLow  float64
	DiscountHigh float64
}

// Offer is the computed cash-offer range for one parcel. When the roll
// data cannot support a number, CanMakeOffer is false and Reason says
// why; a sheet never invents a price.
type Offer struct {
	CanMakeOffer bool     `json:"can_make_offer"`
	Reason       string   `json:"reason,omitempty"`
	Low          float64  `json:"low,omitempty"`
	High         float64  `json:"high,omitempty"`
	PricePerAcre *float64 `json:"price_per_acre,omitempty"`
	DiscountLow  float64  `json:"discount_low,omitempty"`
	DiscountHigh float64  `json:"discount_high,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Mid returns the midpoint of the range, the sheet's one representative
// price for retail, spread and buyer-budget math.
func (o Offer) Mid() float64 {
	if !o.CanMakeOffer {
		return 0
	}
	return math.Round((o.Low + o.High) / 2)
}

// ComputeOffer derives the offer range from assessed land value. A nil
// parcel or a parcel without an assessed land value yields
// CanMakeOffer=false; null acreage computes the range but suppresses the
// per-acre figure.
func ComputeOffer(parcel *domain.Parcel, p OfferParams) Offer {
	if parcel == nil {
		return Offer{Reason: "no parcel on record"}
	}
	if parcel.LandAssessedValue == nil || *parcel.LandAssessedValue <= 0 {
		return Offer{Reason: "no assessed land value on record"}
	}
	land := *parcel.LandAssessedValue

	low := p.DiscountLow
	high := p.DiscountHigh
	if low <= 0 {
		low = baseDiscountLow
	}
	if high <= 0 {
		high = baseDiscountHigh
	}

	adj := 0.0
	acres := parcel.LotSizeAcres
	if acres != nil && *acres > 0 {
		if *acres < 1 {
			adj += smallLotBonus
		}
		if *acres > 10 {
			adj -= largeLotPenalty
		}
	}
	if parcel.IsAdjudicated {
		adj -= adjudicatedPenalty
	}
	if parcel.YearsTaxDelinquent > 0 {
		adj -= math.Min(delinquentPerYear*float64(parcel.YearsTaxDelinquent), delinquentCap)
	}

	o := Offer{
		CanMakeOffer: true,
		DiscountLow:  clamp(low+adj, discountFloor, discountCeil),
		DiscountHigh: clamp(high+adj, discountFloor, discountCeil),
	}
	o.Low = math.Max(round100(land*o.DiscountLow), offerFloorLow)
	o.High = math.Max(round100(land*o.DiscountHigh), offerFloorHigh)

	if acres == nil || *acres <= 0 {
		o.Warnings = append(o.Warnings, "missing_acreage")
	} else {
		ppa := math.Round(o.Mid() / *acres)
		o.PricePerAcre = &ppa
	}
	return o
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round100(v float64) float64 {
	return math.Round(v/100) * 100
}

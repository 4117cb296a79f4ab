package dealsheet

import (
	"testing"

	"github.com/acreage/leadline/internal/domain"
)

func floatRef(f float64) *float64 { return &f }

func parcelWith(land *float64, acres *float64) *domain.Parcel {
	return &domain.Parcel{ID: 1, Parish: "CADDO", LandAssessedValue: land, LotSizeAcres: acres}
}

func TestComputeOffer_NoFabrication(t *testing.T) {
	if o := ComputeOffer(nil, OfferParams{}); o.CanMakeOffer || o.Reason == "" {
		t.Errorf("nil parcel: %+v", o)
	}
	if o := ComputeOffer(parcelWith(nil, floatRef(5)), OfferParams{}); o.CanMakeOffer {
		t.Errorf("nil land value: %+v", o)
	}
	if o := ComputeOffer(parcelWith(floatRef(0), floatRef(5)), OfferParams{}); o.CanMakeOffer {
		t.Errorf("zero land value: %+v", o)
	}
}

func TestComputeOffer_BaseBand(t *testing.T) {
	// $10,000 land, 5 acres: no adjustments apply.
	o := ComputeOffer(parcelWith(floatRef(10000), floatRef(5)), OfferParams{})
	if !o.CanMakeOffer {
		t.Fatalf("offer refused: %+v", o)
	}
	if o.Low != 5500 || o.High != 7000 {
		t.Errorf("range = %.0f-%.0f, want 5500-7000", o.Low, o.High)
	}
	if o.PricePerAcre == nil || *o.PricePerAcre != 1250 {
		t.Errorf("price per acre = %v, want 1250 (mid 6250 / 5 ac)", o.PricePerAcre)
	}
	if len(o.Warnings) != 0 {
		t.Errorf("warnings = %v", o.Warnings)
	}
}

func TestComputeOffer_Adjustments(t *testing.T) {
	land := floatRef(10000.0)

	tests := []struct {
		name     string
		parcel   *domain.Parcel
		wantLow  float64
		wantHigh float64
	}{
		{
			name:     "small lot premium",
			parcel:   parcelWith(land, floatRef(0.5)),
			wantLow:  6000, // 0.60
			wantHigh: 7500, // 0.75
		},
		{
			name:     "large lot discount",
			parcel:   parcelWith(land, floatRef(40)),
			wantLow:  5000, // 0.50
			wantHigh: 6500, // 0.65
		},
		{
			name: "adjudicated",
			parcel: &domain.Parcel{
				LandAssessedValue: land, LotSizeAcres: floatRef(5), IsAdjudicated: true,
			},
			wantLow:  4000, // 0.40
			wantHigh: 5500, // 0.55
		},
		{
			name: "delinquency capped at ten points",
			parcel: &domain.Parcel{
				LandAssessedValue: land, LotSizeAcres: floatRef(5), YearsTaxDelinquent: 8,
			},
			wantLow:  4500, // 0.55 - 0.10
			wantHigh: 6000, // 0.70 - 0.10
		},
		{
			name: "two years delinquent",
			parcel: &domain.Parcel{
				LandAssessedValue: land, LotSizeAcres: floatRef(5), YearsTaxDelinquent: 2,
			},
			wantLow:  5100, // 0.55 - 0.04
			wantHigh: 6600, // 0.70 - 0.04
		},
		{
			name: "stacked distress clamps at the floor",
			parcel: &domain.Parcel{
				LandAssessedValue: land, LotSizeAcres: floatRef(40),
				IsAdjudicated: true, YearsTaxDelinquent: 10,
			},
			// 0.55 - 0.05 - 0.15 - 0.10 = 0.25 -> clamped to 0.30
			wantLow:  3000,
			wantHigh: 4000, // 0.70 - 0.30 = 0.40
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ComputeOffer(tt.parcel, OfferParams{})
			if !o.CanMakeOffer {
				t.Fatalf("offer refused: %+v", o)
			}
			if o.Low != tt.wantLow || o.High != tt.wantHigh {
				t.Errorf("range = %.0f-%.0f, want %.0f-%.0f", o.Low, o.High, tt.wantLow, tt.wantHigh)
			}
		})
	}
}

func TestComputeOffer_MissingAcreage(t *testing.T) {
	o := ComputeOffer(parcelWith(floatRef(10000), nil), OfferParams{})
	if !o.CanMakeOffer {
		t.Fatalf("offer refused: %+v", o)
	}
	if o.Low != 5500 || o.High != 7000 {
		t.Errorf("range = %.0f-%.0f", o.Low, o.High)
	}
	if o.PricePerAcre != nil {
		t.Error("per-acre price must be suppressed without acreage")
	}
	if len(o.Warnings) != 1 || o.Warnings[0] != "missing_acreage" {
		t.Errorf("warnings = %v", o.Warnings)
	}
}

func TestComputeOffer_Floors(t *testing.T) {
	// $600 land value: 0.55/0.70 of it round to $300/$400, under the floors.
	o := ComputeOffer(parcelWith(floatRef(600), floatRef(1.5)), OfferParams{})
	if o.Low != 500 || o.High != 1000 {
		t.Errorf("range = %.0f-%.0f, want the 500/1000 floors", o.Low, o.High)
	}
}

func TestComputeOffer_RoundsToHundred(t *testing.T) {
	// $8,765 land: 0.55 -> 4820.75 -> 4800; 0.70 -> 6135.5 -> 6100.
	o := ComputeOffer(parcelWith(floatRef(8765), floatRef(3)), OfferParams{})
	if o.Low != 4800 || o.High != 6100 {
		t.Errorf("range = %.0f-%.0f, want 4800-6100", o.Low, o.High)
	}
}

func TestComputeOffer_OverrideBand(t *testing.T) {
	o := ComputeOffer(parcelWith(floatRef(10000), floatRef(5)), OfferParams{DiscountLow: 0.40, DiscountHigh: 0.50})
	if o.Low != 4000 || o.High != 5000 {
		t.Errorf("range = %.0f-%.0f, want 4000-5000", o.Low, o.High)
	}

	// Overrides still respect the clamp.
	o = ComputeOffer(parcelWith(floatRef(10000), floatRef(5)), OfferParams{DiscountLow: 0.10, DiscountHigh: 0.99})
	if o.DiscountLow != 0.30 || o.DiscountHigh != 0.95 {
		t.Errorf("discounts = %.2f/%.2f, want clamped 0.30/0.95", o.DiscountLow, o.DiscountHigh)
	}
}

func TestOfferMid(t *testing.T) {
	o := Offer{CanMakeOffer: true, Low: 5500, High: 7000}
	if got := o.Mid(); got != 6250 {
		t.Errorf("Mid() = %.0f, want 6250", got)
	}
	if got := (Offer{}).Mid(); got != 0 {
		t.Errorf("Mid() on refused offer = %.0f, want 0", got)
	}
}

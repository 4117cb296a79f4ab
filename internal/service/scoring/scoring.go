// Package scoring computes the 0-100 motivation score that drives lead
// triage. Score is a pure function of (parcel, party): equal inputs
// always produce an equal score and breakdown, so nightly rescoring is
// reproducible.
package scoring

import (
	"fmt"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
)

// Factor names, in the fixed order they appear in breakdowns.
const (
	FactorAdjudicated   = "adjudicated"
	FactorTaxDelinquent = "tax_delinquent"
	FactorLowImprove    = "low_improvement"
	FactorAbsentee      = "absentee_owner"
	FactorLotSize       = "lot_size_ideal"
)

// Ideal lot band for small-acreage flips.
const (
	idealLotMin = 0.5
	idealLotMax = 5.0
)

// Engine scores parcels against configured weights and thresholds.
type Engine struct {
	cfg config.ScoringConfig
}

// NewEngine builds a scoring engine from configuration.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score computes the motivation breakdown for one parcel and its owning
// party. The party supplies the mailing zip for the absentee test.
func (e *Engine) Score(parcel *domain.Parcel, party *domain.Party) *domain.ScoreBreakdown {
	w := e.cfg.Weights
	b := &domain.ScoreBreakdown{}

	if parcel.IsAdjudicated {
		b.Factors = append(b.Factors, domain.FactorScore{
			Factor: FactorAdjudicated,
			Points: w.Adjudicated,
			Detail: "parcel adjudicated to the parish",
		})
	}

	if yrs := parcel.YearsTaxDelinquent; yrs > 0 {
		points := yrs * w.TaxDelinquentPerYear
		if points > w.TaxDelinquentCap {
			points = w.TaxDelinquentCap
		}
		b.Factors = append(b.Factors, domain.FactorScore{
			Factor: FactorTaxDelinquent,
			Points: points,
			Detail: fmt.Sprintf("%d years tax delinquent", yrs),
		})
	}

	if lowImprovement(parcel) {
		detail := "vacant land"
		if !parcel.VacantLand() {
			detail = "improvement under 10% of land value"
		}
		b.Factors = append(b.Factors, domain.FactorScore{
			Factor: FactorLowImprove,
			Points: w.LowImprovement,
			Detail: detail,
		})
	}

	if absentee(parcel, party) {
		b.Factors = append(b.Factors, domain.FactorScore{
			Factor: FactorAbsentee,
			Points: w.AbsenteeOwner,
			Detail: fmt.Sprintf("mailing zip %s, situs zip %s", party.NormalizedZip, zipOf(parcel)),
		})
	}

	if acres := parcel.LotSizeAcres; acres != nil && *acres >= idealLotMin && *acres <= idealLotMax {
		b.Factors = append(b.Factors, domain.FactorScore{
			Factor: FactorLotSize,
			Points: w.LotSizeIdeal,
			Detail: fmt.Sprintf("%.2f acres in the %.1f-%.0f band", *acres, idealLotMin, idealLotMax),
		})
	}

	for _, f := range b.Factors {
		b.Total += f.Points
	}
	if b.Total > 100 {
		b.Total = 100
	}

	if b.Total < e.cfg.RejectThreshold {
		b.Disqualified = true
		b.DisqualifyReason = fmt.Sprintf("score %d below reject threshold %d", b.Total, e.cfg.RejectThreshold)
	}

	return b
}

// StageFor maps a breakdown onto the pipeline stage automated scoring
// would place the lead in. Boundary values go to the higher bucket.
// The store refuses this transition for manually-advanced leads.
func (e *Engine) StageFor(b *domain.ScoreBreakdown) domain.PipelineStage {
	switch {
	case b.Disqualified:
		return domain.StageIngested
	case b.Total >= e.cfg.HotThreshold:
		return domain.StageHot
	case b.Total >= e.cfg.ContactThreshold:
		return domain.StageNew
	default:
		return domain.StagePreScore
	}
}

// lowImprovement: vacant land, or improvement value under 10% of land
// value. Parcels with no land value at all only qualify via vacancy.
func lowImprovement(p *domain.Parcel) bool {
	if p.VacantLand() {
		return true
	}
	if p.LandAssessedValue == nil || *p.LandAssessedValue <= 0 {
		return false
	}
	return *p.ImprovementAssessedValue < 0.10*(*p.LandAssessedValue)
}

// absentee: both zips known and different.
func absentee(p *domain.Parcel, party *domain.Party) bool {
	situs := zipOf(p)
	return situs != "" && party.NormalizedZip != "" && party.NormalizedZip != situs
}

func zipOf(p *domain.Parcel) string {
	if p.PostalCode == nil {
		return ""
	}
	return *p.PostalCode
}

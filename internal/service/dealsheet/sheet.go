// Package dealsheet turns a lead into the numbers a disposition call
// needs: offer range, retail estimate, comps, owner situation. Sheets are
// cached with a TTL because the inputs move nightly, not per request.
package dealsheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pkg/breaker"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// Assignment potential is judged on the spread between the retail
// estimate and the top of the offer range.
const (
	strongSpread   = 0.25
	moderateSpread = 0.15
)

// Sheet is the generated deal summary. It is what the cache persists and
// what the API returns.
type Sheet struct {
	LeadID              int64                `json:"lead_id"`
	Parish              string               `json:"parish,omitempty"`
	Acres               *float64             `json:"acres,omitempty"`
	MotivationScore     int                  `json:"motivation_score"`
	Offer               Offer                `json:"offer"`
	RetailEstimate      *float64             `json:"retail_estimate,omitempty"`
	AvailableSpread     *float64             `json:"available_spread,omitempty"`
	AssignmentPotential string               `json:"assignment_potential,omitempty"`
	OwnerSituation      string               `json:"owner_situation"`
	Comps               *domain.CompsSummary `json:"comps,omitempty"`
	CompsNote           string               `json:"comps_note,omitempty"`
	AIDescription       string               `json:"ai_description,omitempty"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// Stores bundles the persistence the generator reads and writes.
type Stores struct {
	Leads   LeadStore
	Parcels ParcelStore
	Sheets  SheetStore
}

// Service generates and caches deal sheets.
type Service struct {
	cfg       config.DealSheetConfig
	st        Stores
	comps     CompsSource
	describer Describer
	breakers  *breaker.Manager
}

// NewService wires the generator. comps may be nil when the warehouse is
// disabled.
func NewService(cfg config.DealSheetConfig, st Stores, comps CompsSource) *Service {
	return &Service{cfg: cfg, st: st, comps: comps}
}

// SetDescriber enables the AI deal description.
func (s *Service) SetDescriber(d Describer, breakers *breaker.Manager) {
	s.describer = d
	s.breakers = breakers
}

// Generate returns the lead's sheet, serving the cache while it is fresh
// and rebuilding otherwise.
func (s *Service) Generate(ctx context.Context, leadID int64) (*Sheet, error) {
	if row, err := s.st.Sheets.Get(ctx, leadID); err == nil && row.Fresh(time.Now()) {
		var sheet Sheet
		if err := json.Unmarshal(row.Content, &sheet); err == nil {
			return &sheet, nil
		}
		logger.Warn("cached deal sheet unreadable, rebuilding", "lead_id", leadID)
	}
	return s.Rebuild(ctx, leadID)
}

// Rebuild generates a fresh sheet and replaces the cache entry.
func (s *Service) Rebuild(ctx context.Context, leadID int64) (*Sheet, error) {
	lead, err := s.st.Leads.Get(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("dealsheet: load lead %d: %w", leadID, err)
	}

	sheet := &Sheet{
		LeadID:          leadID,
		MotivationScore: lead.MotivationScore,
		GeneratedAt:     time.Now().UTC(),
	}

	parcel, err := s.st.Parcels.Get(ctx, lead.ParcelID)
	if err != nil {
		parcel = nil
	}
	if parcel != nil {
		sheet.Parish = parcel.Parish
		sheet.Acres = parcel.LotSizeAcres
	}

	sheet.Offer = ComputeOffer(parcel, OfferParams{})
	if sheet.Offer.CanMakeOffer {
		retail := round100(sheet.Offer.Mid() * s.retailMultiplier())
		sheet.RetailEstimate = &retail
		spread := (retail - sheet.Offer.High) / sheet.Offer.High
		sheet.AvailableSpread = &spread
		sheet.AssignmentPotential = assignmentPotential(spread)
	}
	sheet.OwnerSituation = ownerSituation(parcel, lead)

	s.attachComps(ctx, sheet, parcel)
	s.attachDescription(ctx, sheet)

	content, err := json.Marshal(sheet)
	if err != nil {
		return nil, fmt.Errorf("dealsheet: marshal sheet: %w", err)
	}
	var aiDesc *string
	if sheet.AIDescription != "" {
		aiDesc = &sheet.AIDescription
	}
	if _, err := s.st.Sheets.Save(ctx, leadID, content, aiDesc, s.ttl()); err != nil {
		// The sheet is still good; only the cache write failed.
		logger.Warn("deal sheet not cached", "lead_id", leadID, "error", err)
	}
	return sheet, nil
}

// Reprice returns a copy of sheet with the offer recomputed under a
// custom discount band and retail, spread and assignment rederived. The
// cache is left alone: an override is a per-call what-if, not new truth.
func (s *Service) Reprice(sheet *Sheet, parcel *domain.Parcel, p OfferParams) *Sheet {
	cp := *sheet
	cp.Offer = ComputeOffer(parcel, p)
	cp.RetailEstimate = nil
	cp.AvailableSpread = nil
	cp.AssignmentPotential = ""
	if cp.Offer.CanMakeOffer {
		retail := round100(cp.Offer.Mid() * s.retailMultiplier())
		cp.RetailEstimate = &retail
		spread := (retail - cp.Offer.High) / cp.Offer.High
		cp.AvailableSpread = &spread
		cp.AssignmentPotential = assignmentPotential(spread)
	}
	return &cp
}

func (s *Service) attachComps(ctx context.Context, sheet *Sheet, parcel *domain.Parcel) {
	if s.comps == nil || parcel == nil || parcel.LotSizeAcres == nil || *parcel.LotSizeAcres <= 0 {
		sheet.CompsNote = "comps_unavailable"
		return
	}
	cs, err := s.comps.Summary(ctx, parcel.Parish, *parcel.LotSizeAcres)
	if err != nil || cs == nil || cs.Count == 0 {
		sheet.CompsNote = "comps_unavailable"
		if err != nil {
			logger.Warn("comps lookup failed", "lead_id", sheet.LeadID, "error", err)
		}
		return
	}
	sheet.Comps = cs
}

func (s *Service) attachDescription(ctx context.Context, sheet *Sheet) {
	if s.describer == nil || !sheet.Offer.CanMakeOffer {
		return
	}
	var desc string
	err := s.breakers.Get("llm").Do(func() error {
		var derr error
		desc, derr = s.describer.DescribeDeal(ctx, sheet.facts())
		return derr
	})
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			logger.Warn("deal description skipped", "lead_id", sheet.LeadID, "error", err)
		}
		return
	}
	sheet.AIDescription = strings.TrimSpace(desc)
}

// facts renders the sheet's numbers as the prompt input. Only data the
// sheet established goes in; the model decorates, it does not estimate.
func (sh *Sheet) facts() string {
	var b strings.Builder
	if sh.Acres != nil {
		fmt.Fprintf(&b, "%.1f acres", *sh.Acres)
	} else {
		b.WriteString("acreage unknown")
	}
	if sh.Parish != "" {
		fmt.Fprintf(&b, " in %s Parish", sh.Parish)
	}
	fmt.Fprintf(&b, ". Offer range $%.0f to $%.0f.", sh.Offer.Low, sh.Offer.High)
	if sh.RetailEstimate != nil {
		fmt.Fprintf(&b, " Retail estimate $%.0f.", *sh.RetailEstimate)
	}
	if sh.Comps != nil {
		fmt.Fprintf(&b, " %d recent comps, median $%.0f/acre.", sh.Comps.Count, sh.Comps.MedianPerAcre)
	}
	if sh.OwnerSituation != "" {
		fmt.Fprintf(&b, " Owner situation: %s.", sh.OwnerSituation)
	}
	return b.String()
}

func (s *Service) retailMultiplier() float64 {
	if s.cfg.RetailMultiplier > 0 {
		return s.cfg.RetailMultiplier
	}
	return 1.4
}

func (s *Service) ttl() time.Duration {
	hours := s.cfg.TTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func assignmentPotential(spread float64) string {
	switch {
	case spread >= strongSpread:
		return "strong"
	case spread >= moderateSpread:
		return "moderate"
	default:
		return "thin"
	}
}

// ownerSituation summarizes the distress signals in one line for the
// call prep and the blast detail.
func ownerSituation(parcel *domain.Parcel, lead *domain.Lead) string {
	var parts []string
	if parcel != nil {
		if parcel.IsAdjudicated {
			parts = append(parts, "adjudicated (tax title)")
		}
		if parcel.YearsTaxDelinquent > 0 {
			parts = append(parts, fmt.Sprintf("%d years tax delinquent", parcel.YearsTaxDelinquent))
		}
	}
	parts = append(parts, fmt.Sprintf("motivation score %d/100", lead.MotivationScore))
	return strings.Join(parts, "; ")
}

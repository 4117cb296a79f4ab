package buyers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/ratelimit"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/sms"
)

// Rubric weights. They sum to 100 so a score reads as a percentage.
const (
	weightMarket  = 25
	weightCounty  = 20
	weightAcreage = 15
	weightBudget  = 15
	weightVIP     = 10
	weightPOF     = 10
	weightSpread  = 5
)

// MatchInput is the lead side of the rubric, lifted off the deal sheet.
// Nil numbers mean the roll could not establish them; bounded criteria
// score zero against a nil value.
type MatchInput struct {
	MarketCode string
	Parish     string
	Acres      *float64
	Price      *float64 // representative offer, midpoint of the range
	Spread     *float64 // available spread off the deal sheet
}

// Match pairs a buyer with its rubric score for one lead.
type Match struct {
	Buyer domain.Buyer `json:"buyer"`
	Score int          `json:"score"`
}

// Service matches leads to buyers and runs deal blasts.
type Service struct {
	cfg     config.BuyersConfig
	dryRun  bool
	st      Stores
	sheets  SheetSource
	engine  *sms.Engine
	gateway Gateway
	limiter *ratelimit.Bucket
}

// NewService wires the buyer service. limiter may be nil. dryRun forces
// every blast into simulation regardless of the request flag.
func NewService(cfg config.BuyersConfig, dryRun bool, st Stores, sheets SheetSource, engine *sms.Engine, gateway Gateway, limiter *ratelimit.Bucket) *Service {
	return &Service{cfg: cfg, dryRun: dryRun, st: st, sheets: sheets, engine: engine, gateway: gateway, limiter: limiter}
}

// MatchBuyers scores every buyer registered for the market and returns
// those at or above minScore, VIPs first, then best score, then lowest
// id. Zero minScore and limit fall back to the configured defaults.
func (s *Service) MatchBuyers(ctx context.Context, in MatchInput, minScore, limit int) ([]Match, error) {
	if minScore <= 0 {
		minScore = s.minScore()
	}
	if limit <= 0 {
		limit = s.maxPerBlast()
	}
	candidates, err := s.st.Buyers.ListByMarket(ctx, in.MarketCode)
	if err != nil {
		return nil, fmt.Errorf("buyers: list market %s: %w", in.MarketCode, err)
	}

	var out []Match
	for i := range candidates {
		score := scoreBuyer(&candidates[i], in)
		if score < minScore {
			continue
		}
		out = append(out, Match{Buyer: candidates[i], Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Buyer.VIP != out[j].Buyer.VIP {
			return out[i].Buyer.VIP
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Buyer.ID < out[j].Buyer.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// scoreBuyer applies the rubric. The market criterion is re-checked even
// though candidates arrive pre-filtered by market, so explicit buyer
// lists score honestly too.
func scoreBuyer(b *domain.Buyer, in MatchInput) int {
	score := 0
	for _, code := range b.MarketCodes {
		if strings.EqualFold(code, in.MarketCode) {
			score += weightMarket
			break
		}
	}
	if countyMatch(b.Counties, in.Parish) {
		score += weightCounty
	}
	if inRange(b.MinAcres, b.MaxAcres, in.Acres) {
		score += weightAcreage
	}
	if inRange(b.PriceMin, b.PriceMax, in.Price) {
		score += weightBudget
	}
	if b.VIP {
		score += weightVIP
	}
	if b.POFVerified {
		score += weightPOF
	}
	if b.TargetSpread == nil || (in.Spread != nil && *in.Spread >= *b.TargetSpread) {
		score += weightSpread
	}
	return score
}

// countyMatch is substring containment in either direction, so "CADDO"
// matches a buyer who listed "Caddo Parish". No counties means anywhere
// in the market; an unknown parish matches only those buyers.
func countyMatch(counties []string, parish string) bool {
	if len(counties) == 0 {
		return true
	}
	p := strings.ToLower(strings.TrimSpace(parish))
	if p == "" {
		return false
	}
	for _, c := range counties {
		cl := strings.ToLower(strings.TrimSpace(c))
		if cl == "" {
			continue
		}
		if strings.Contains(p, cl) || strings.Contains(cl, p) {
			return true
		}
	}
	return false
}

// inRange checks one bounded criterion. No bounds is a pass; bounds
// with no lead value to check is a fail.
func inRange(lo, hi, v *float64) bool {
	if lo == nil && hi == nil {
		return true
	}
	if v == nil {
		return false
	}
	if lo != nil && *v < *lo {
		return false
	}
	if hi != nil && *v > *hi {
		return false
	}
	return true
}

func (s *Service) minScore() int {
	if s.cfg.MinMatchScore > 0 {
		return s.cfg.MinMatchScore
	}
	return 50
}

func (s *Service) maxPerBlast() int {
	if s.cfg.MaxPerBlast > 0 {
		return s.cfg.MaxPerBlast
	}
	return 10
}

func matchInput(lead *domain.Lead, sheet *dealsheet.Sheet) MatchInput {
	in := MatchInput{
		MarketCode: lead.MarketCode,
		Parish:     sheet.Parish,
		Acres:      sheet.Acres,
		Spread:     sheet.AvailableSpread,
	}
	if sheet.Offer.CanMakeOffer {
		mid := sheet.Offer.Mid()
		in.Price = &mid
	}
	return in
}

// askingPrice splits the spread with the buyer: halfway from the top of
// the offer range to the retail estimate, rounded to $100. Zero means
// the teaser omits a price.
func askingPrice(sheet *dealsheet.Sheet) float64 {
	if !sheet.Offer.CanMakeOffer || sheet.RetailEstimate == nil {
		return 0
	}
	return math.Round((sheet.Offer.High+*sheet.RetailEstimate)/2/100) * 100
}

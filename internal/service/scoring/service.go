package scoring

import (
	"context"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// LeadStore is the lead access the rescoring service needs.
type LeadStore interface {
	ListNeedingScore(ctx context.Context, marketCode string, limit, offset int) ([]domain.Lead, error)
	UpdateScore(ctx context.Context, id int64, score int, breakdown *domain.ScoreBreakdown, stage domain.PipelineStage) error
}

// ParcelStore fetches parcels by id.
type ParcelStore interface {
	Get(ctx context.Context, id int64) (*domain.Parcel, error)
}

// OwnerStore fetches owners by id.
type OwnerStore interface {
	Get(ctx context.Context, id int64) (*domain.Owner, error)
}

// PartyStore fetches parties by id.
type PartyStore interface {
	Get(ctx context.Context, id int64) (*domain.Party, error)
}

// Service rescans leads and persists score plus stage atomically.
type Service struct {
	engine  *Engine
	leads   LeadStore
	parcels ParcelStore
	owners  OwnerStore
	parties PartyStore
}

// NewService wires the rescoring service.
func NewService(engine *Engine, leads LeadStore, parcels ParcelStore, owners OwnerStore, parties PartyStore) *Service {
	return &Service{engine: engine, leads: leads, parcels: parcels, owners: owners, parties: parties}
}

// Summary counts one rescoring run.
type Summary struct {
	Scored       int `json:"scored"`
	Hot          int `json:"hot"`
	Disqualified int `json:"disqualified"`
	Errors       int `json:"errors"`
}

// ScoreLead scores one lead and persists the result. The stage mapping
// is advisory for manually-advanced leads; the store keeps their stage.
func (s *Service) ScoreLead(ctx context.Context, lead *domain.Lead) (*domain.ScoreBreakdown, error) {
	parcel, err := s.parcels.Get(ctx, lead.ParcelID)
	if err != nil {
		return nil, fmt.Errorf("load parcel %d: %w", lead.ParcelID, err)
	}
	owner, err := s.owners.Get(ctx, lead.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner %d: %w", lead.OwnerID, err)
	}
	party, err := s.parties.Get(ctx, owner.PartyID)
	if err != nil {
		return nil, fmt.Errorf("load party %d: %w", owner.PartyID, err)
	}

	breakdown := s.engine.Score(parcel, party)
	stage := s.engine.StageFor(breakdown)
	if err := s.leads.UpdateScore(ctx, lead.ID, breakdown.Total, breakdown, stage); err != nil {
		return nil, fmt.Errorf("persist score for lead %d: %w", lead.ID, err)
	}
	return breakdown, nil
}

// ScoreMarket rescans every lead in a market in id order. Per-lead
// failures are counted and skipped so one bad row cannot stall the
// nightly pass.
func (s *Service) ScoreMarket(ctx context.Context, marketCode string, batchSize int) (*Summary, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	sum := &Summary{}

	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		batch, err := s.leads.ListNeedingScore(ctx, marketCode, batchSize, offset)
		if err != nil {
			return sum, fmt.Errorf("list leads at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			breakdown, err := s.ScoreLead(ctx, &batch[i])
			if err != nil {
				sum.Errors++
				logger.Warn("scoring skipped lead", "lead_id", batch[i].ID, "error", err)
				continue
			}
			sum.Scored++
			if breakdown.Disqualified {
				sum.Disqualified++
			} else if breakdown.Total >= s.engine.cfg.HotThreshold {
				sum.Hot++
			}
		}

		if len(batch) < batchSize {
			break
		}
	}

	logger.Info("market rescored",
		"market", marketCode,
		"scored", sum.Scored,
		"hot", sum.Hot,
		"disqualified", sum.Disqualified,
		"errors", sum.Errors,
	)
	return sum, nil
}

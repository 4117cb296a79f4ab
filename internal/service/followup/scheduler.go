// Package followup drives the outreach cadence: leads whose next touch
// has come due are advanced and re-dispatched until the cadence is
// exhausted or the owner replies.
package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/service/outreach"
)

// LeadStore is the lead access the scheduler needs.
type LeadStore interface {
	ListFollowupsDue(ctx context.Context, limit int) ([]domain.Lead, error)
	AdvanceFollowup(ctx context.Context, id int64, count int, next *time.Time) error
	CancelFollowup(ctx context.Context, id int64) error
}

// OwnerStore fetches owners for the pre-dispatch gate check.
type OwnerStore interface {
	Get(ctx context.Context, id int64) (*domain.Owner, error)
}

// Dispatcher sends one message. Satisfied by *outreach.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req outreach.Request) (*domain.OutreachAttempt, error)
}

// Summary reports one scheduler pass.
type Summary struct {
	Due      int `json:"due"`
	Sent     int `json:"sent"`
	Skipped  int `json:"skipped"`
	Canceled int `json:"canceled"`
	Errors   int `json:"errors"`
}

// Scheduler walks due followups. State is advanced before the dispatcher
// is invoked, so a crash between the two can only skip a touch, never
// send it twice.
type Scheduler struct {
	cfg        config.OutreachConfig
	leads      LeadStore
	owners     OwnerStore
	dispatcher Dispatcher
}

// NewScheduler wires the scheduler.
func NewScheduler(cfg config.OutreachConfig, leads LeadStore, owners OwnerStore, dispatcher Dispatcher) *Scheduler {
	return &Scheduler{cfg: cfg, leads: leads, owners: owners, dispatcher: dispatcher}
}

// RunOnce processes up to limit due followups (0 means the configured
// batch size) and reports what happened.
func (s *Scheduler) RunOnce(ctx context.Context, limit int) (*Summary, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	if limit <= 0 {
		limit = 100
	}

	due, err := s.leads.ListFollowupsDue(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list due followups: %w", err)
	}

	sum := &Summary{Due: len(due)}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s.processLead(ctx, &due[i], sum)
	}
	if sum.Due > 0 {
		logger.Info("followup pass complete",
			"due", sum.Due, "sent", sum.Sent, "skipped", sum.Skipped,
			"canceled", sum.Canceled, "errors", sum.Errors)
	}
	return sum, nil
}

func (s *Scheduler) processLead(ctx context.Context, lead *domain.Lead, sum *Summary) {
	owner, err := s.owners.Get(ctx, lead.OwnerID)
	if err != nil {
		logger.Error("followup owner lookup failed", "lead_id", lead.ID, "error", err)
		sum.Errors++
		return
	}

	// Every gate refusal is permanent (opt-out, DNR, blocking reply,
	// unusable phone), so a refused lead leaves the cadence entirely
	// instead of being requeried every pass.
	if _, skipErr := outreach.CheckTCPA(owner, lead, false); skipErr != nil {
		if err := s.leads.CancelFollowup(ctx, lead.ID); err != nil {
			logger.Error("followup cancel failed", "lead_id", lead.ID, "error", err)
			sum.Errors++
			return
		}
		logger.Info("followup canceled", "lead_id", lead.ID, "code", skipErr.Code)
		sum.Canceled++
		return
	}

	newCount := lead.FollowupCount + 1
	mc, next := s.nextTouch(newCount)

	if err := s.leads.AdvanceFollowup(ctx, lead.ID, newCount, next); err != nil {
		logger.Error("followup advance failed", "lead_id", lead.ID, "error", err)
		sum.Errors++
		return
	}

	if _, err := s.dispatcher.Dispatch(ctx, outreach.Request{LeadID: lead.ID, Context: mc}); err != nil {
		if outreach.IsSkip(err) {
			sum.Skipped++
			return
		}
		logger.Warn("followup dispatch failed", "lead_id", lead.ID, "error", err)
		sum.Errors++
		return
	}
	sum.Sent++
}

// nextTouch decides the message context for followup number newCount and
// when (if ever) the one after it is due.
func (s *Scheduler) nextTouch(newCount int) (domain.MessageContext, *time.Time) {
	if s.cfg.MaxFollowups > 0 && newCount >= s.cfg.MaxFollowups {
		return domain.ContextFinal, nil
	}
	ivals := s.cfg.FollowupIntervalDays
	if len(ivals) == 0 {
		return domain.ContextFollowup, nil
	}
	idx := newCount
	if idx >= len(ivals) {
		idx = len(ivals) - 1
	}
	next := time.Now().Add(time.Duration(ivals[idx]) * 24 * time.Hour)
	return domain.ContextFollowup, &next
}

// Run ticks RunOnce until the context ends. cmd/server and cmd/worker
// host this as their resident cadence loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	logger.Info("followup scheduler running", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("followup scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, 0); err != nil && ctx.Err() == nil {
				logger.Error("followup pass failed", "error", err)
			}
		}
	}
}

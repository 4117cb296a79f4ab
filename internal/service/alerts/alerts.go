package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/pkg/ratelimit"
	"github.com/acreage/leadline/internal/repository/postgres"
)

const (
	defaultScanLimit   = 100
	defaultSinkTimeout = 10 * time.Second
)

// Alert is one hot-lead notification, composed once and handed to every
// configured sink. Summary fits an SMS; Detail is the email body.
type Alert struct {
	LeadID  int64
	Market  string
	Subject string
	Summary string
	Detail  string
}

// Summary reports one market pass.
type Summary struct {
	Scanned int `json:"scanned"`
	Alerted int `json:"alerted"`
	Failed  int `json:"failed"`
}

// Service finds alertable leads and fans notifications out to sinks.
type Service struct {
	cfg         config.AlertsConfig
	st          Stores
	sinks       []Sink
	bucket      *ratelimit.Bucket
	sinkTimeout time.Duration
}

// NewService wires the alert service. The rate bucket spans all markets
// and both entry points, so a scan burst cannot drown reply-driven pages.
func NewService(cfg config.AlertsConfig, st Stores, sinks ...Sink) *Service {
	rate := cfg.RatePerMinute
	if rate <= 0 {
		rate = 10
	}
	return &Service{
		cfg:         cfg,
		st:          st,
		sinks:       sinks,
		bucket:      ratelimit.NewBucket(rate, time.Minute),
		sinkTimeout: defaultSinkTimeout,
	}
}

// RunOnce alerts every HOT lead in the market that clears the score
// threshold and sits outside the dedup window. Per-lead failures are
// counted and logged; the pass keeps going.
func (s *Service) RunOnce(ctx context.Context, marketCode string) (Summary, error) {
	var sum Summary

	ac, err := s.st.Configs.GetByMarket(ctx, marketCode)
	if errors.Is(err, postgres.ErrNotFound) {
		return sum, nil
	}
	if err != nil {
		return sum, fmt.Errorf("alerts: load config for %s: %w", marketCode, err)
	}
	if !ac.Enabled || !ac.HasSinks() {
		return sum, nil
	}

	leads, err := s.st.Leads.ListHotUnalerted(ctx, marketCode, ac.HotScoreThreshold, s.dedupHours(ac), defaultScanLimit)
	if err != nil {
		return sum, fmt.Errorf("alerts: list hot leads: %w", err)
	}
	sum.Scanned = len(leads)

	for i := range leads {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := s.alert(ctx, ac, &leads[i]); err != nil {
			sum.Failed++
			logger.Warn("hot lead alert failed", "lead_id", leads[i].ID, "error", err)
			continue
		}
		sum.Alerted++
	}
	return sum, nil
}

// HotLead pages one lead that just turned hot, typically off a positive
// reply. The score threshold is ignored here: a seller saying "yes" beats
// whatever the roll data scored them. Satisfies conversation.Alerter.
func (s *Service) HotLead(ctx context.Context, leadID int64) error {
	lead, err := s.st.Leads.Get(ctx, leadID)
	if err != nil {
		return fmt.Errorf("alerts: load lead %d: %w", leadID, err)
	}

	ac, err := s.st.Configs.GetByMarket(ctx, lead.MarketCode)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("alerts: load config for %s: %w", lead.MarketCode, err)
	}
	if !ac.Enabled || !ac.HasSinks() {
		return nil
	}
	if !s.dueForAlert(ac, lead) {
		return nil
	}
	return s.alert(ctx, ac, lead)
}

func (s *Service) alert(ctx context.Context, ac *domain.AlertConfig, lead *domain.Lead) error {
	a, err := s.compose(ctx, lead)
	if err != nil {
		return err
	}
	if err := s.bucket.Wait(ctx); err != nil {
		return err
	}

	delivered := s.deliver(ctx, ac, a)
	if delivered == 0 {
		return fmt.Errorf("alerts: no sink delivered lead %d", lead.ID)
	}

	if err := s.st.Leads.TouchAlerted(ctx, lead.ID); err != nil {
		// Next pass re-alerts; noisy beats silent for hot leads.
		logger.Error("lead not stamped alerted", "lead_id", lead.ID, "error", err)
	}
	logger.Info("hot lead alerted", "lead_id", lead.ID, "market", lead.MarketCode, "sinks", delivered)
	return nil
}

// deliver fans out to every configured sink concurrently and returns how
// many succeeded.
func (s *Service) deliver(ctx context.Context, ac *domain.AlertConfig, a Alert) int {
	var wg sync.WaitGroup
	var delivered atomic.Int64

	for _, sink := range s.sinks {
		if !sink.Configured(ac) {
			continue
		}
		wg.Add(1)
		go func(sk Sink) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
			defer cancel()
			if err := sk.Send(sctx, ac, a); err != nil {
				logger.Warn("alert sink failed", "sink", sk.Name(), "lead_id", a.LeadID, "error", err)
				return
			}
			delivered.Add(1)
		}(sink)
	}
	wg.Wait()
	return int(delivered.Load())
}

func (s *Service) compose(ctx context.Context, lead *domain.Lead) (Alert, error) {
	a := Alert{LeadID: lead.ID, Market: lead.MarketCode}

	owner, err := s.st.Owners.Get(ctx, lead.OwnerID)
	if err != nil {
		return a, fmt.Errorf("alerts: load owner %d: %w", lead.OwnerID, err)
	}

	name := "unknown owner"
	if party, err := s.st.Parties.Get(ctx, owner.PartyID); err == nil && party.DisplayName != "" {
		name = party.DisplayName
	}
	phone := "no phone on file"
	if owner.PhonePrimary != nil && *owner.PhonePrimary != "" {
		phone = *owner.PhonePrimary
	}

	where := lead.MarketCode
	if parcel, err := s.st.Parcels.Get(ctx, lead.ParcelID); err == nil {
		if parcel.Parish != "" {
			where = parcel.Parish + " Parish"
		}
		if parcel.LotSizeAcres != nil && *parcel.LotSizeAcres > 0 {
			where = fmt.Sprintf("%.1f ac in %s", *parcel.LotSizeAcres, where)
		}
	}

	a.Subject = fmt.Sprintf("Hot land lead: %s (score %d)", where, lead.MotivationScore)
	a.Summary = fmt.Sprintf("HOT lead #%d: %s, %s, score %d. Call %s.",
		lead.ID, name, where, lead.MotivationScore, phone)

	var b strings.Builder
	fmt.Fprintf(&b, "Lead #%d in %s is hot.\n\n", lead.ID, lead.MarketCode)
	fmt.Fprintf(&b, "Owner: %s\nPhone: %s\nProperty: %s\nMotivation score: %d\n",
		name, phone, where, lead.MotivationScore)
	if lead.LastReplyClassification != nil {
		fmt.Fprintf(&b, "Last reply: %s", string(*lead.LastReplyClassification))
		if lead.LastReplyAt != nil {
			fmt.Fprintf(&b, " at %s", lead.LastReplyAt.Format(time.RFC1123))
		}
		b.WriteString("\n")
	}
	a.Detail = b.String()

	return a, nil
}

func (s *Service) dueForAlert(ac *domain.AlertConfig, lead *domain.Lead) bool {
	if lead.LastAlertedAt == nil {
		return true
	}
	return time.Since(*lead.LastAlertedAt) >= time.Duration(s.dedupHours(ac))*time.Hour
}

func (s *Service) dedupHours(ac *domain.AlertConfig) int {
	if ac.DedupHours > 0 {
		return ac.DedupHours
	}
	if s.cfg.DedupHours > 0 {
		return s.cfg.DedupHours
	}
	return 24
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/phone"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/sms"
)

// Stores bundles the persistence the engine touches.
type Stores struct {
	Owners   OwnerStore
	Leads    LeadStore
	Inbound  InboundStore
	Attempts AttemptStore
	Timeline TimelineStore
}

// Outcome reports what one inbound message did to the system.
type Outcome struct {
	Duplicate bool          `json:"duplicate"`
	Matched   bool          `json:"matched"`
	Intent    domain.Intent `json:"intent,omitempty"`
	Source    string        `json:"source,omitempty"`
	OptedOut  bool          `json:"opted_out"`
	LeadID    *int64        `json:"lead_id,omitempty"`
}

// Engine turns inbound replies into lead state. Every message is stored
// first (webhook replays dedup on the provider sid), then classified,
// then applied: opt-outs flip the owner permanently, positive intent
// marks the lead hot, everything else adjusts the followup cadence.
type Engine struct {
	cfg        config.OutreachConfig
	st         Stores
	classifier *Classifier
	gateway    Gateway
	templates  *sms.Engine

	alerter Alerter
}

// NewEngine wires the required collaborators.
func NewEngine(cfg config.OutreachConfig, st Stores, classifier *Classifier, gateway Gateway, templates *sms.Engine) *Engine {
	return &Engine{
		cfg:        cfg,
		st:         st,
		classifier: classifier,
		gateway:    gateway,
		templates:  templates,
	}
}

// SetAlerter enables immediate hot-lead notification on positive intent.
func (e *Engine) SetAlerter(a Alerter) { e.alerter = a }

// Process handles one inbound SMS end to end. sid, from and body come
// straight from the gateway webhook.
func (e *Engine) Process(ctx context.Context, sid, from, body string) (*Outcome, error) {
	e164, ok := phone.Normalize(from)
	if !ok {
		e164 = from
	}

	owner, lead := e.match(ctx, e164)

	msg := &domain.InboundMessage{MessageSid: sid, FromPhone: e164, Body: body}
	if owner != nil {
		msg.OwnerID = &owner.ID
	}
	if lead != nil {
		msg.LeadID = &lead.ID
	}
	if err := e.st.Inbound.Insert(ctx, msg); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			logger.Info("inbound replay ignored", "sid", sid)
			return &Outcome{Duplicate: true}, nil
		}
		return nil, fmt.Errorf("store inbound %s: %w", sid, err)
	}

	verdict := e.classify(ctx, body, lead)
	outcome := &Outcome{Matched: lead != nil, Intent: verdict.Intent, Source: verdict.Source}

	switch {
	case owner == nil:
		logger.Warn("inbound from unknown number", "sid", sid)
	case lead == nil:
		// No active lead, but a STOP from a known owner still binds.
		if verdict.Intent.OptOutIntent() {
			e.optOutOwner(ctx, owner, e164, nil)
			outcome.OptedOut = true
		}
	default:
		outcome.LeadID = &lead.ID
		if err := e.apply(ctx, owner, lead, e164, body, verdict, outcome); err != nil {
			return nil, err
		}
	}

	if err := e.st.Inbound.MarkProcessed(ctx, msg.ID, msg.LeadID, msg.OwnerID, verdict.Intent); err != nil {
		logger.Error("inbound not marked processed", "sid", sid, "error", err)
	}
	return outcome, nil
}

// match resolves the sender to an owner and their active lead. Either
// may be absent; replies from strangers are stored and nothing more.
func (e *Engine) match(ctx context.Context, e164 string) (*domain.Owner, *domain.Lead) {
	owner, err := e.st.Owners.GetByPhone(ctx, e164)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			logger.Error("owner lookup failed", "error", err)
		}
		return nil, nil
	}
	lead, err := e.st.Leads.ActiveForOwner(ctx, owner.ID)
	if err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			logger.Error("lead lookup failed", "owner_id", owner.ID, "error", err)
		}
		return owner, nil
	}
	return owner, lead
}

func (e *Engine) classify(ctx context.Context, body string, lead *domain.Lead) Verdict {
	var lastOutbound string
	if lead != nil {
		var err error
		lastOutbound, err = e.st.Attempts.LastSentBody(ctx, lead.ID)
		if err != nil {
			logger.Warn("last outbound lookup failed", "lead_id", lead.ID, "error", err)
		}
	}
	return e.classifier.Classify(ctx, body, lastOutbound)
}

// apply runs the state transitions for a matched reply.
func (e *Engine) apply(ctx context.Context, owner *domain.Owner, lead *domain.Lead, e164, body string, verdict Verdict, outcome *Outcome) error {
	cls := verdict.Intent.Classification()

	if err := e.st.Attempts.RecordResponse(ctx, lead.ID, body, cls); err != nil {
		logger.Warn("response not attached to attempt", "lead_id", lead.ID, "error", err)
	}
	e.appendTimeline(ctx, lead.ID, "reply_received", map[string]any{
		"intent":     string(verdict.Intent),
		"confidence": verdict.Confidence,
		"source":     verdict.Source,
	})

	switch {
	case verdict.Intent.OptOutIntent():
		e.optOutOwner(ctx, owner, e164, lead)
		outcome.OptedOut = true
		if err := e.st.Leads.RecordReply(ctx, lead.ID, domain.ReplyDead, domain.StageContacted, domain.LeadStatusDead, nil); err != nil {
			return fmt.Errorf("record opt-out reply on lead %d: %w", lead.ID, err)
		}

	case verdict.Intent == domain.IntentNotInterested:
		next := time.Now().Add(notInterestedRetryDays * 24 * time.Hour)
		if err := e.st.Leads.RecordReply(ctx, lead.ID, domain.ReplyNotInterested, domain.StageContacted, domain.LeadStatusResponded, &next); err != nil {
			return fmt.Errorf("record not-interested reply on lead %d: %w", lead.ID, err)
		}

	case verdict.Intent.PositiveIntent():
		next := e.nextFollowup(lead.FollowupCount + 1)
		if err := e.st.Leads.RecordReply(ctx, lead.ID, cls, domain.StageHot, domain.LeadStatusResponded, next); err != nil {
			return fmt.Errorf("record positive reply on lead %d: %w", lead.ID, err)
		}
		e.appendTimeline(ctx, lead.ID, "lead_hot", map[string]any{"intent": string(verdict.Intent)})
		if e.alerter != nil {
			if err := e.alerter.HotLead(ctx, lead.ID); err != nil {
				logger.Warn("hot lead alert not enqueued", "lead_id", lead.ID, "error", err)
			}
		}

	default:
		next := e.nextFollowup(lead.FollowupCount + 1)
		if err := e.st.Leads.RecordReply(ctx, lead.ID, cls, lead.PipelineStage, domain.LeadStatusResponded, next); err != nil {
			return fmt.Errorf("record reply on lead %d: %w", lead.ID, err)
		}
	}
	return nil
}

// A cold "not interested" is retried once after a long quiet period.
// The followup query still excludes NOT_INTERESTED leads, so this date
// is a re-engagement marker for humans, not an automated send.
const notInterestedRetryDays = 30

// optOutOwner flips the owner permanently and acknowledges the first
// opt-out. The flag is set before the acknowledgement goes out: losing
// the ack is an annoyance, losing the opt-out is a violation.
func (e *Engine) optOutOwner(ctx context.Context, owner *domain.Owner, e164 string, lead *domain.Lead) {
	wasOptedOut := owner.OptOut
	if err := e.st.Owners.SetOptOut(ctx, owner.ID); err != nil {
		logger.Error("opt-out not persisted", "owner_id", owner.ID, "error", err)
		return
	}
	if lead != nil {
		e.appendTimeline(ctx, lead.ID, "opt_out", map[string]any{"owner_id": owner.ID})
	}
	if wasOptedOut {
		return
	}

	ack, err := e.templates.OptOutAck()
	if err != nil {
		logger.Error("opt-out ack render failed", "error", err)
		return
	}
	res, err := e.gateway.SendSMS(ctx, e164, ack)
	if err != nil || res == nil || !res.Success {
		logger.Warn("opt-out ack not delivered", "owner_id", owner.ID, "error", err)
		return
	}
	if lead != nil {
		e.appendTimeline(ctx, lead.ID, "opt_out_ack_sent", map[string]any{"sid": res.Sid})
	}
}

// nextFollowup schedules the touch after this reply: intervals indexed
// by the incremented count, nil once the cadence is exhausted.
func (e *Engine) nextFollowup(newCount int) *time.Time {
	if e.cfg.MaxFollowups > 0 && newCount >= e.cfg.MaxFollowups {
		return nil
	}
	ivals := e.cfg.FollowupIntervalDays
	if len(ivals) == 0 {
		return nil
	}
	idx := newCount
	if idx >= len(ivals) {
		idx = len(ivals) - 1
	}
	next := time.Now().Add(time.Duration(ivals[idx]) * 24 * time.Hour)
	return &next
}

func (e *Engine) appendTimeline(ctx context.Context, leadID int64, eventType string, detail map[string]any) {
	if err := e.st.Timeline.Append(ctx, leadID, eventType, detail); err != nil {
		logger.Warn("timeline append failed", "lead_id", leadID, "event", eventType, "error", err)
	}
}

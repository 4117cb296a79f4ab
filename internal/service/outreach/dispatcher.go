package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pkg/breaker"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/pkg/ratelimit"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/resolve"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

// Request is one dispatch order. Body overrides generation when set;
// Force bypasses only the reply-classification block, for sends a human
// explicitly approved. DryRun simulates this one dispatch even when the
// service-wide dry-run mode is off.
type Request struct {
	LeadID  int64
	Context domain.MessageContext
	Body    string
	Force   bool
	DryRun  bool
	DateKey string // idempotency day override; empty means today (UTC)
}

// Stores bundles the persistence interfaces the dispatcher touches.
type Stores struct {
	Leads    LeadStore
	Owners   OwnerStore
	Parcels  ParcelStore
	Parties  PartyStore
	Attempts AttemptStore
	Timeline TimelineStore
}

// Dispatcher is the single chokepoint for outbound messages. Every send
// passes the TCPA gate, the per-lead cooldown, the daily budget, the
// send lock and the idempotency ledger before the gateway is called.
type Dispatcher struct {
	cfg       config.OutreachConfig
	st        Stores
	gateway   Gateway
	templates *sms.Engine
	locks     *LockService
	instance  string

	drafter  Drafter
	budget   Budget
	limiter  *ratelimit.Bucket
	breakers *breaker.Manager
}

// NewDispatcher wires the required collaborators. Optional ones (LLM
// drafter, budget, rate limiter, breakers) attach via setters.
func NewDispatcher(cfg config.OutreachConfig, st Stores, gateway Gateway, templates *sms.Engine) *Dispatcher {
	instance := fmt.Sprintf("dispatch-%s", uuid.New().String()[:8])
	return &Dispatcher{
		cfg:       cfg,
		st:        st,
		gateway:   gateway,
		templates: templates,
		instance:  instance,
		locks:     NewLockService(st.Leads, instance, time.Duration(cfg.SendLockTTLSeconds)*time.Second),
	}
}

// SetDrafter enables LLM message generation with template fallback.
func (d *Dispatcher) SetDrafter(dr Drafter) { d.drafter = dr }

// SetBudget enforces the fleet-wide daily send cap.
func (d *Dispatcher) SetBudget(b Budget) { d.budget = b }

// SetRateLimiter throttles gateway calls to the configured rate.
func (d *Dispatcher) SetRateLimiter(b *ratelimit.Bucket) { d.limiter = b }

// SetBreakers guards gateway calls with the named circuit breaker.
func (d *Dispatcher) SetBreakers(m *breaker.Manager) { d.breakers = m }

// Instance returns the send-lock holder id of this dispatcher.
func (d *Dispatcher) Instance() string { return d.instance }

// Dispatch runs one send end to end. Returns the attempt row on any
// outcome that recorded one. Error classes callers branch on:
// *SkipError (gate/cooldown/budget refused, nothing recorded),
// ErrLockContended, ErrDuplicateSend (existing attempt returned), and
// raising gateway conditions.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*domain.OutreachAttempt, error) {
	if !req.Context.Valid() {
		return nil, fmt.Errorf("unknown message context %q", req.Context)
	}

	lead, err := d.st.Leads.Get(ctx, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("load lead %d: %w", req.LeadID, err)
	}
	owner, err := d.st.Owners.Get(ctx, lead.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner %d: %w", lead.OwnerID, err)
	}

	to, skipErr := CheckTCPA(owner, lead, req.Force)
	if skipErr != nil {
		logger.Info("dispatch gated", "lead_id", lead.ID, "code", skipErr.Code)
		return nil, skipErr
	}

	// Cooldown paces intro sends only: a re-ingested or re-batched lead
	// must not get intro blasts back to back. Followups pace themselves
	// through the cadence intervals.
	if req.Context == domain.ContextIntro {
		if err := d.checkCooldown(ctx, lead); err != nil {
			return nil, err
		}
	}

	if d.budget != nil {
		ok, err := d.budget.Take(ctx)
		if err != nil {
			return nil, fmt.Errorf("budget check: %w", err)
		}
		if !ok {
			return nil, skip(SkipBudget, "daily sms budget exhausted")
		}
	}

	var attempt *domain.OutreachAttempt
	lockErr := d.locks.WithLock(ctx, lead.ID, func(ctx context.Context) error {
		var execErr error
		attempt, execErr = d.execute(ctx, lead, owner, to, req)
		return execErr
	})
	return attempt, lockErr
}

func (d *Dispatcher) checkCooldown(ctx context.Context, lead *domain.Lead) error {
	if d.cfg.CooldownDays <= 0 {
		return nil
	}
	last, err := d.st.Attempts.LastSentAt(ctx, lead.ID)
	if err != nil {
		return fmt.Errorf("cooldown check for lead %d: %w", lead.ID, err)
	}
	if last == nil {
		return nil
	}
	cool := time.Duration(d.cfg.CooldownDays) * 24 * time.Hour
	if since := time.Since(*last); since < cool {
		return skip(SkipCooldown, "lead %d messaged %s ago, cooldown is %d days",
			lead.ID, since.Round(time.Minute), d.cfg.CooldownDays)
	}
	return nil
}

// execute runs under the send lock: reserve the idempotency slot, settle
// the body, then either simulate or call the gateway and finalize.
func (d *Dispatcher) execute(ctx context.Context, lead *domain.Lead, owner *domain.Owner, to string, req Request) (*domain.OutreachAttempt, error) {
	key := IdempotencyKey(lead.ID, req.Context, req.DateKey)
	attempt := &domain.OutreachAttempt{
		LeadID:         lead.ID,
		IdempotencyKey: &key,
		Channel:        "sms",
		MessageBody:    req.Body,
		MessageContext: req.Context,
	}
	if err := d.st.Attempts.Reserve(ctx, attempt); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			logger.Info("dispatch already attempted",
				"lead_id", lead.ID, "context", string(req.Context), "attempt_id", attempt.ID)
			return attempt, ErrDuplicateSend
		}
		return nil, fmt.Errorf("reserve attempt: %w", err)
	}

	body := req.Body
	if body == "" {
		body = d.composeBody(ctx, lead, owner, req)
		if err := d.st.Attempts.SetBody(ctx, attempt.ID, body); err != nil {
			logger.Warn("attempt body not persisted", "attempt_id", attempt.ID, "error", err)
		}
	}
	attempt.MessageBody = body

	if d.cfg.DryRun || req.DryRun {
		return d.finalizeDryRun(ctx, attempt)
	}
	return d.send(ctx, lead, attempt, to, body)
}

func (d *Dispatcher) finalizeDryRun(ctx context.Context, attempt *domain.OutreachAttempt) (*domain.OutreachAttempt, error) {
	externalID := domain.ResultDryRun
	now := time.Now().UTC()
	if err := d.st.Attempts.Finalize(ctx, attempt.ID, domain.AttemptDryRun, domain.ResultDryRun, &externalID, nil, &now); err != nil {
		return attempt, fmt.Errorf("finalize dry run: %w", err)
	}
	attempt.Status = domain.AttemptDryRun
	result := domain.ResultDryRun
	attempt.Result = &result
	attempt.ExternalID = &externalID
	attempt.SentAt = &now

	d.appendTimeline(ctx, attempt.LeadID, "outreach_dry_run", map[string]any{
		"context":  string(attempt.MessageContext),
		"segments": sms.Segments(attempt.MessageBody),
	})
	logger.Info("dry run send", "lead_id", attempt.LeadID, "context", string(attempt.MessageContext))
	return attempt, nil
}

func (d *Dispatcher) send(ctx context.Context, lead *domain.Lead, attempt *domain.OutreachAttempt, to, body string) (*domain.OutreachAttempt, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return d.finalizeFailure(ctx, attempt, domain.ResultRateLimited, err.Error(), err)
		}
	}

	sendFn := func() (*twilio.SendResult, error) { return d.gateway.SendSMS(ctx, to, body) }
	var res *twilio.SendResult
	var sendErr error
	if d.breakers != nil {
		sendErr = d.breakers.Get("twilio").Do(func() error {
			var inner error
			res, inner = sendFn()
			return inner
		})
		if errors.Is(sendErr, breaker.ErrOpen) {
			return d.finalizeFailure(ctx, attempt, domain.ResultTwilioError, "twilio circuit open", sendErr)
		}
	} else {
		res, sendErr = sendFn()
	}
	if res == nil {
		// Transport-level failure: nothing reached the gateway.
		msg := "twilio transport failure"
		if sendErr != nil {
			msg = sendErr.Error()
		}
		return d.finalizeFailure(ctx, attempt, domain.ResultTwilioError, msg, sendErr)
	}

	if !res.Success {
		_, err := d.finalizeFailure(ctx, attempt, res.Result, res.ErrorMsg, nil)
		if err != nil {
			return attempt, err
		}
		if res.Sid != "" {
			sid := res.Sid
			attempt.ExternalID = &sid
		}
		// Raising conditions propagate so callers and breakers see them.
		return attempt, sendErr
	}

	sid := res.Sid
	sentAt := res.SentAt
	if err := d.st.Attempts.Finalize(ctx, attempt.ID, domain.AttemptSent, domain.ResultSent, &sid, nil, &sentAt); err != nil {
		return attempt, fmt.Errorf("finalize sent attempt %d: %w", attempt.ID, err)
	}
	attempt.Status = domain.AttemptSent
	result := domain.ResultSent
	attempt.Result = &result
	attempt.ExternalID = &sid
	attempt.SentAt = &sentAt

	next := d.seedFollowup(sentAt)
	if err := d.st.Leads.MarkContacted(ctx, lead.ID, next); err != nil {
		logger.Error("lead not marked contacted", "lead_id", lead.ID, "error", err)
	}
	d.appendTimeline(ctx, lead.ID, "outreach_sent", map[string]any{
		"context":  string(attempt.MessageContext),
		"sid":      sid,
		"segments": sms.Segments(body),
	})
	logger.Info("outreach sent", "lead_id", lead.ID, "context", string(attempt.MessageContext), "sid", sid)
	return attempt, nil
}

func (d *Dispatcher) finalizeFailure(ctx context.Context, attempt *domain.OutreachAttempt, result, errMsg string, sendErr error) (*domain.OutreachAttempt, error) {
	var msgPtr *string
	if errMsg != "" {
		msgPtr = &errMsg
	}
	if err := d.st.Attempts.Finalize(ctx, attempt.ID, domain.AttemptFailed, result, nil, msgPtr, nil); err != nil {
		return attempt, fmt.Errorf("finalize failed attempt %d: %w", attempt.ID, err)
	}
	attempt.Status = domain.AttemptFailed
	attempt.Result = &result
	attempt.ErrorMessage = msgPtr

	d.appendTimeline(ctx, attempt.LeadID, "outreach_failed", map[string]any{
		"context": string(attempt.MessageContext),
		"result":  result,
	})
	logger.Warn("outreach failed", "lead_id", attempt.LeadID, "result", result, "error", errMsg)
	return attempt, sendErr
}

// composeBody settles the outbound text: LLM draft when configured,
// deterministic template otherwise or on any LLM failure.
func (d *Dispatcher) composeBody(ctx context.Context, lead *domain.Lead, owner *domain.Owner, req Request) string {
	params := d.messageParams(ctx, lead, owner, req)

	if d.drafter != nil {
		drafted, err := d.drafter.DraftMessage(ctx, llm.MessageParams{
			Context:    string(req.Context),
			FirstName:  params.FirstName,
			Parish:     params.Parish,
			Acres:      params.Acres,
			FollowupNo: params.FollowupNo,
		})
		if err == nil && drafted != "" {
			return drafted
		}
		if err != nil && !errors.Is(err, llm.ErrDisabled) {
			logger.Warn("llm draft failed, using template", "lead_id", lead.ID, "error", err)
		}
	}

	body, err := d.templates.Outreach(req.Context, params)
	if err != nil {
		// Templates are compiled in; failure here is a programming error.
		logger.Error("template render failed", "context", string(req.Context), "error", err)
		return "Hi, I'm a local land buyer interested in your property. Would you consider a cash offer? Reply STOP to opt out."
	}
	return body
}

// messageParams assembles personalization inputs, tolerating missing
// enrichment rows: a sparse message beats no message.
func (d *Dispatcher) messageParams(ctx context.Context, lead *domain.Lead, owner *domain.Owner, req Request) sms.Params {
	p := sms.Params{FollowupNo: req.FollowupNo(lead)}

	if parcel, err := d.st.Parcels.Get(ctx, lead.ParcelID); err == nil {
		p.Parish = parcel.Parish
		p.Acres = parcel.LotSizeAcres
	}
	if party, err := d.st.Parties.Get(ctx, owner.PartyID); err == nil {
		p.FirstName = resolve.FirstName(party.DisplayName)
	}
	return p
}

// FollowupNo derives which touch this request is, for template wording.
func (r Request) FollowupNo(lead *domain.Lead) int {
	switch r.Context {
	case domain.ContextFollowup, domain.ContextFinal:
		return lead.FollowupCount + 1
	default:
		return 0
	}
}

func (d *Dispatcher) appendTimeline(ctx context.Context, leadID int64, event string, detail map[string]any) {
	if err := d.st.Timeline.Append(ctx, leadID, event, detail); err != nil {
		logger.Warn("timeline append failed", "lead_id", leadID, "event", event, "error", err)
	}
}

// seedFollowup computes the first followup due time after an intro send.
// The store only applies it when no followup is already scheduled.
func (d *Dispatcher) seedFollowup(sentAt time.Time) *time.Time {
	if len(d.cfg.FollowupIntervalDays) == 0 {
		return nil
	}
	next := sentAt.Add(time.Duration(d.cfg.FollowupIntervalDays[0]) * 24 * time.Hour)
	return &next
}

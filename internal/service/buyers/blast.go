package buyers

import (
	"context"
	"errors"
	"fmt"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/sms"
)

// Outcome statuses. "duplicate_today" means the idempotency slot for
// this buyer and day was already taken, most likely by a concurrent
// blast of the same lead.
const (
	StatusSent           = "sent"
	StatusDryRun         = "dry_run"
	StatusAlreadyBlasted = "already_blasted"
	StatusNoPhone        = "no_phone"
	StatusDuplicate      = "duplicate_today"
	StatusFailed         = "failed"
)

// Request asks for one lead's deal to be blasted. BuyerIDs bypasses
// matching: the listed buyers are scored for the record but sent to
// regardless of threshold.
type Request struct {
	LeadID        int64   `json:"lead_id"`
	BuyerIDs      []int64 `json:"buyer_ids,omitempty"`
	MaxBuyers     int     `json:"max_buyers,omitempty"`
	MinMatchScore int     `json:"min_match_score,omitempty"`
	DryRun        bool    `json:"dry_run,omitempty"`
}

// Outcome reports what happened for one buyer.
type Outcome struct {
	BuyerID int64  `json:"buyer_id"`
	Buyer   string `json:"buyer,omitempty"`
	Score   int    `json:"score"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Result summarizes a blast run.
type Result struct {
	LeadID   int64     `json:"lead_id"`
	Matched  int       `json:"matched"`
	Sent     int       `json:"sent"`
	DryRun   int       `json:"dry_run,omitempty"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// Blast generates the lead's deal sheet and teases it to the top
// matching buyers over SMS. Each buyer receives a given deal at most
// once ever (blast_sent_at) and at most one attempt per day (the
// idempotency ledger).
func (s *Service) Blast(ctx context.Context, req Request) (*Result, error) {
	lead, err := s.st.Leads.Get(ctx, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("buyers: load lead %d: %w", req.LeadID, err)
	}
	sheet, err := s.sheets.Generate(ctx, req.LeadID)
	if err != nil {
		return nil, fmt.Errorf("buyers: deal sheet for lead %d: %w", req.LeadID, err)
	}

	res := &Result{LeadID: req.LeadID}
	in := matchInput(lead, sheet)

	var matches []Match
	if len(req.BuyerIDs) > 0 {
		for _, id := range req.BuyerIDs {
			b, err := s.st.Buyers.Get(ctx, id)
			if err != nil {
				res.Failed++
				res.Outcomes = append(res.Outcomes, Outcome{BuyerID: id, Status: StatusFailed, Error: err.Error()})
				continue
			}
			matches = append(matches, Match{Buyer: *b, Score: scoreBuyer(b, in)})
		}
	} else {
		matches, err = s.MatchBuyers(ctx, in, req.MinMatchScore, req.MaxBuyers)
		if err != nil {
			return nil, err
		}
	}
	res.Matched = len(matches)

	dryRun := s.dryRun || req.DryRun
	for _, m := range matches {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		o := s.blastOne(ctx, lead, sheet, m, dryRun)
		res.Outcomes = append(res.Outcomes, o)
		switch o.Status {
		case StatusSent:
			res.Sent++
		case StatusDryRun:
			res.DryRun++
		case StatusFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	logger.Info("buyer blast finished", "lead_id", req.LeadID,
		"matched", res.Matched, "sent", res.Sent, "dry_run", res.DryRun,
		"skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Service) blastOne(ctx context.Context, lead *domain.Lead, sheet *dealsheet.Sheet, m Match, dryRun bool) Outcome {
	o := Outcome{BuyerID: m.Buyer.ID, Buyer: m.Buyer.Name, Score: m.Score}

	deal, err := s.st.Deals.Upsert(ctx, m.Buyer.ID, lead.ID, m.Score)
	if err != nil {
		o.Status, o.Error = StatusFailed, err.Error()
		return o
	}
	if deal.BlastSentAt != nil {
		o.Status = StatusAlreadyBlasted
		return o
	}
	if m.Buyer.Phone == nil || *m.Buyer.Phone == "" {
		o.Status = StatusNoPhone
		return o
	}

	body, err := s.engine.BuyerBlast(sms.Params{
		Parish: sheet.Parish,
		Acres:  sheet.Acres,
		Asking: askingPrice(sheet),
	})
	if err != nil {
		o.Status, o.Error = StatusFailed, err.Error()
		return o
	}

	if dryRun {
		logger.Info("dry run blast", "lead_id", lead.ID, "buyer_id", m.Buyer.ID, "score", m.Score)
		o.Status = StatusDryRun
		return o
	}

	mc := blastContext(m.Buyer.ID)
	key := outreach.IdempotencyKey(lead.ID, mc, "")
	attempt := &domain.OutreachAttempt{
		LeadID:         lead.ID,
		IdempotencyKey: &key,
		Channel:        "sms",
		MessageBody:    body,
		MessageContext: mc,
	}
	if err := s.st.Attempts.Reserve(ctx, attempt); err != nil {
		if errors.Is(err, postgres.ErrDuplicate) {
			o.Status = StatusDuplicate
			return o
		}
		o.Status, o.Error = StatusFailed, err.Error()
		return o
	}

	// Stamp before sending: a crash here skips this buyer, a crash after
	// the send can never repeat it.
	if err := s.st.Deals.MarkBlastSent(ctx, deal.ID); err != nil {
		s.abortAttempt(ctx, attempt.ID, err)
		o.Status, o.Error = StatusFailed, err.Error()
		return o
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.abortAttempt(ctx, attempt.ID, err)
			o.Status, o.Error = StatusFailed, err.Error()
			return o
		}
	}

	sendRes, sendErr := s.gateway.SendSMS(ctx, *m.Buyer.Phone, body)
	if sendRes == nil || !sendRes.Success {
		result := domain.ResultTwilioError
		msg := "twilio transport failure"
		if sendRes != nil {
			if sendRes.Result != "" {
				result = sendRes.Result
			}
			if sendRes.ErrorMsg != "" {
				msg = sendRes.ErrorMsg
			}
		} else if sendErr != nil {
			msg = sendErr.Error()
		}
		if err := s.st.Attempts.Finalize(ctx, attempt.ID, domain.AttemptFailed, result, nil, &msg, nil); err != nil {
			logger.Error("blast attempt not finalized", "attempt_id", attempt.ID, "error", err)
		}
		o.Status, o.Error = StatusFailed, msg
		return o
	}

	sid := sendRes.Sid
	sentAt := sendRes.SentAt
	if err := s.st.Attempts.Finalize(ctx, attempt.ID, domain.AttemptSent, domain.ResultSent, &sid, nil, &sentAt); err != nil {
		logger.Error("blast attempt not finalized", "attempt_id", attempt.ID, "error", err)
	}
	if err := s.st.Buyers.RecordDealSent(ctx, m.Buyer.ID); err != nil {
		logger.Warn("buyer deal counter not bumped", "buyer_id", m.Buyer.ID, "error", err)
	}
	if s.st.Timeline != nil {
		if err := s.st.Timeline.Append(ctx, lead.ID, "buyer_blast_sent", map[string]any{
			"buyer_id": m.Buyer.ID, "buyer": m.Buyer.Name, "score": m.Score, "sid": sid,
		}); err != nil {
			logger.Warn("timeline append failed", "lead_id", lead.ID, "error", err)
		}
	}
	logger.Info("buyer blast sent", "lead_id", lead.ID, "buyer_id", m.Buyer.ID, "sid", sid)
	o.Status = StatusSent
	return o
}

// abortAttempt closes a reserved attempt that never reached the wire.
func (s *Service) abortAttempt(ctx context.Context, attemptID int64, cause error) {
	msg := cause.Error()
	if err := s.st.Attempts.Finalize(ctx, attemptID, domain.AttemptFailed, "blast_aborted", nil, &msg, nil); err != nil {
		logger.Error("blast attempt not finalized", "attempt_id", attemptID, "error", err)
	}
}

// blastContext embeds the buyer so each buyer gets an independent daily
// idempotency slot for the same lead.
func blastContext(buyerID int64) domain.MessageContext {
	return domain.MessageContext(fmt.Sprintf("buyer_blast:%d", buyerID))
}

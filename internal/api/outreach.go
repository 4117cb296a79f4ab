package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/outreach"
)

type outreachLeadRequest struct {
	Context string `json:"context,omitempty"`
	Body    string `json:"body,omitempty"`
	Force   bool   `json:"force,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// OutreachLead answers POST /api/outreach/lead/{id}: one synchronous
// dispatch through the full gate chain. Policy refusals come back as
// stable codes, and an idempotency duplicate is a success carrying the
// existing attempt.
func (h *Handlers) OutreachLead(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sender == nil {
		unavailable(w, "outreach")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	req := outreachLeadRequest{Context: string(domain.ContextIntro)}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	mc := domain.MessageContext(strings.ToLower(req.Context))
	if mc == "" {
		mc = domain.ContextIntro
	}
	if !mc.Valid() {
		httputil.BadRequest(w, "unknown context "+strconv.Quote(req.Context))
		return
	}

	attempt, err := h.deps.Sender.Dispatch(r.Context(), outreach.Request{
		LeadID:  id,
		Context: mc,
		Body:    req.Body,
		Force:   req.Force,
		DryRun:  req.DryRun,
	})
	if errors.Is(err, outreach.ErrDuplicateSend) {
		httputil.OK(w, map[string]any{"attempt": attempt, "duplicate": true})
		return
	}
	if err != nil {
		writeOutreachError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"attempt": attempt})
}

type outreachBatchRequest struct {
	Market   string `json:"market,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	MinScore int    `json:"min_score,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// batchOutcome is the per-market slice of an outreach_batch task result.
type batchOutcome struct {
	Market     string `json:"market"`
	Candidates int    `json:"candidates"`
	Sent       int64  `json:"sent"`
	Skipped    int64  `json:"skipped"`
	Failed     int64  `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// OutreachBatch answers POST /api/outreach/batch. The batch runs in the
// background under an outreach_batch task; the response is the task id
// to poll. Candidate selection matches the nightly intro step.
func (h *Handlers) OutreachBatch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pool == nil {
		unavailable(w, "outreach")
		return
	}
	var req outreachBatchRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	markets := h.cfg.Markets
	if req.Market != "" {
		m := h.cfg.Market(req.Market)
		if m == nil {
			httputil.BadRequest(w, "unknown market "+strconv.Quote(req.Market))
			return
		}
		markets = []config.MarketConfig{*m}
	}
	if req.Limit <= 0 {
		req.Limit = h.cfg.Outreach.BatchSize
	}

	task, err := h.deps.Tasks.Create(r.Context(), domain.TaskOutreachBatch, req)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if err := h.deps.Tasks.Start(r.Context(), task.ID); err != nil {
		logger.Warn("batch task not marked running", "task_id", task.TaskID, "error", err)
	}

	ctx := context.WithoutCancel(r.Context())
	go h.runOutreachBatch(ctx, task, req, markets)

	httputil.Accepted(w, map[string]string{"task_id": task.TaskID})
}

func (h *Handlers) runOutreachBatch(ctx context.Context, task *domain.BackgroundTask, req outreachBatchRequest, markets []config.MarketConfig) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	outcomes := make([]batchOutcome, 0, len(markets))
	failed := false
	for i := range markets {
		m := &markets[i]
		oc := batchOutcome{Market: m.Code}

		minScore := req.MinScore
		if minScore <= 0 {
			minScore = m.MinMotivationScore
		}
		leads, err := h.deps.Leads.ListOutreachCandidates(ctx, m.Code, minScore, req.Limit)
		if err != nil {
			oc.Error = err.Error()
			failed = true
			outcomes = append(outcomes, oc)
			continue
		}
		oc.Candidates = len(leads)
		if len(leads) > 0 {
			batch, err := h.deps.Pool.RunBatch(ctx, outreach.Request{
				Context: domain.ContextIntro,
				DryRun:  req.DryRun,
			}, leads)
			if batch != nil {
				oc.Sent = batch.Sent.Load()
				oc.Skipped = batch.Skipped.Load()
				oc.Failed = batch.Failed.Load()
			}
			if err != nil {
				oc.Error = err.Error()
				failed = true
			}
		}
		outcomes = append(outcomes, oc)
	}

	result := map[string]any{"markets": outcomes}
	if failed {
		if err := h.deps.Tasks.Fail(ctx, task.ID, "one or more markets failed", result); err != nil {
			logger.Error("batch task not marked failed", "task_id", task.TaskID, "error", err)
		}
		return
	}
	if err := h.deps.Tasks.Complete(ctx, task.ID, result); err != nil {
		logger.Error("batch task not marked completed", "task_id", task.TaskID, "error", err)
	}
}

// Stats answers GET /api/stats with the operational counters one
// dashboard call needs.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string]any{}

	stages, err := h.deps.Leads.CountByStage(ctx, r.URL.Query().Get("market"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	out["leads_by_stage"] = stages

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	if byResult, err := h.deps.Attempts.CountByResultSince(ctx, midnight); err == nil {
		out["attempts_today"] = byResult
	} else {
		logger.Warn("attempt counters unavailable", "error", err)
	}

	if h.deps.Pool != nil {
		out["outreach_pool"] = h.deps.Pool.Stats()
	}
	if h.deps.Budget != nil {
		if left, err := h.deps.Budget.Remaining(ctx); err == nil {
			out["sms_budget_remaining"] = left
		} else {
			logger.Warn("budget remaining unavailable", "error", err)
		}
	}
	httputil.OK(w, out)
}

// writeOutreachError translates dispatcher refusals into the HTTP
// contract: 404 unknown lead, 409 send-lock contention, 429 budget,
// 422 for the policy gates, 500 otherwise.
func writeOutreachError(w http.ResponseWriter, err error) {
	var skip *outreach.SkipError
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		httputil.NotFound(w, "lead not found")
	case errors.Is(err, outreach.ErrLockContended):
		httputil.Conflict(w, "SEND_LOCKED", "another worker is sending to this lead")
	case errors.As(err, &skip):
		if skip.Code == outreach.SkipBudget {
			httputil.TooManyRequests(w, string(skip.Code), skip.Reason)
			return
		}
		httputil.Unprocessable(w, string(skip.Code), skip.Reason)
	default:
		httputil.InternalError(w, err)
	}
}

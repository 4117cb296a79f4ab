package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pipeline"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/outreach"
)

func TestOutreachLead_Dispatches(t *testing.T) {
	f := newAPIFixture()
	f.sender.attempt = &domain.OutreachAttempt{ID: 5, LeadID: 1, Status: domain.AttemptSent}

	rec := f.request(t, http.MethodPost, "/api/outreach/lead/1",
		map[string]any{"context": "followup", "dry_run": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	got := f.sender.gotReq
	if got.LeadID != 1 || got.Context != domain.ContextFollowup || !got.DryRun {
		t.Errorf("dispatch request = %+v", got)
	}

	var out struct {
		Attempt   domain.OutreachAttempt `json:"attempt"`
		Duplicate bool                   `json:"duplicate"`
	}
	decodeJSON(t, rec, &out)
	if out.Attempt.ID != 5 || out.Duplicate {
		t.Errorf("response = %+v", out)
	}
}

func TestOutreachLead_DefaultsToIntro(t *testing.T) {
	f := newAPIFixture()
	f.sender.attempt = &domain.OutreachAttempt{ID: 6, LeadID: 1}

	rec := f.request(t, http.MethodPost, "/api/outreach/lead/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.sender.gotReq.Context != domain.ContextIntro {
		t.Errorf("context = %q, want intro", f.sender.gotReq.Context)
	}
}

func TestOutreachLead_UnknownContext(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodPost, "/api/outreach/lead/1",
		map[string]any{"context": "carrier_pigeon"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOutreachLead_DuplicateIsSuccess(t *testing.T) {
	f := newAPIFixture()
	f.sender.attempt = &domain.OutreachAttempt{ID: 9, LeadID: 1}
	f.sender.err = outreach.ErrDuplicateSend

	rec := f.request(t, http.MethodPost, "/api/outreach/lead/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Attempt   domain.OutreachAttempt `json:"attempt"`
		Duplicate bool                   `json:"duplicate"`
	}
	decodeJSON(t, rec, &out)
	if !out.Duplicate || out.Attempt.ID != 9 {
		t.Errorf("response = %+v, want duplicate with existing attempt", out)
	}
}

func TestOutreachLead_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"opt out", &outreach.SkipError{Code: outreach.SkipOptOut, Reason: "owner opted out"}, http.StatusUnprocessableEntity, "OPT_OUT"},
		{"blocked reply", &outreach.SkipError{Code: outreach.SkipBlockedByReply, Reason: "classified not_interested"}, http.StatusUnprocessableEntity, "BLOCKED_CLASSIFICATION"},
		{"cooldown", &outreach.SkipError{Code: outreach.SkipCooldown, Reason: "messaged 2 days ago"}, http.StatusUnprocessableEntity, "COOLDOWN"},
		{"budget", &outreach.SkipError{Code: outreach.SkipBudget, Reason: "daily cap reached"}, http.StatusTooManyRequests, "BUDGET_EXHAUSTED"},
		{"lock held", outreach.ErrLockContended, http.StatusConflict, "SEND_LOCKED"},
		{"storage failure", errors.New("attempts insert: broken pipe"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			f.sender.err = tt.err

			rec := f.request(t, http.MethodPost, "/api/outreach/lead/1", nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				var out struct {
					Code string `json:"code"`
				}
				decodeJSON(t, rec, &out)
				if out.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", out.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestOutreachLead_NotFound(t *testing.T) {
	f := newAPIFixture()
	f.sender.err = fmt.Errorf("lead 42: %w", postgres.ErrNotFound)

	rec := f.request(t, http.MethodPost, "/api/outreach/lead/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestOutreachBatch_RunsPerMarket(t *testing.T) {
	f := newAPIFixture()
	f.tasks.done = make(chan struct{})
	f.leads.candidates = map[string][]domain.Lead{
		"LA-NW": {{ID: 1}, {ID: 2}},
		"LA-SE": {{ID: 3}},
	}

	rec := f.request(t, http.MethodPost, "/api/outreach/batch", map[string]any{"dry_run": true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		TaskID string `json:"task_id"`
	}
	decodeJSON(t, rec, &out)
	if out.TaskID != "task-1" {
		t.Errorf("task_id = %q, want task-1", out.TaskID)
	}

	select {
	case <-f.tasks.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch task never settled")
	}

	if len(f.leads.candCalls) != 2 {
		t.Fatalf("candidate queries = %v, want one per market", f.leads.candCalls)
	}
	// Default min score comes from each market's own floor, default
	// limit from config batch size.
	if f.leads.candCalls[0] != "LA-NW|45|25" || f.leads.candCalls[1] != "LA-SE|50|25" {
		t.Errorf("candidate calls = %v", f.leads.candCalls)
	}
	if len(f.pool.reqs) != 2 {
		t.Fatalf("pool batches = %d, want 2", len(f.pool.reqs))
	}
	for _, req := range f.pool.reqs {
		if req.Context != domain.ContextIntro || !req.DryRun {
			t.Errorf("batch template = %+v", req)
		}
	}
	if !f.tasks.started[1] {
		t.Error("task never marked running")
	}
	if _, ok := f.tasks.completed[1]; !ok {
		t.Error("task never completed")
	}
	if f.tasks.byID[1].Status != domain.TaskCompleted {
		t.Errorf("task status = %q, want completed", f.tasks.byID[1].Status)
	}
}

func TestOutreachBatch_SingleMarketOverrides(t *testing.T) {
	f := newAPIFixture()
	f.tasks.done = make(chan struct{})
	f.leads.candidates = map[string][]domain.Lead{"LA-SE": {{ID: 3}}}

	rec := f.request(t, http.MethodPost, "/api/outreach/batch",
		map[string]any{"market": "LA-SE", "limit": 5, "min_score": 70})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	<-f.tasks.done

	if len(f.leads.candCalls) != 1 || f.leads.candCalls[0] != "LA-SE|70|5" {
		t.Errorf("candidate calls = %v", f.leads.candCalls)
	}
}

func TestOutreachBatch_UnknownMarket(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodPost, "/api/outreach/batch", map[string]any{"market": "XX"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.tasks.seq != 0 {
		t.Error("task created for rejected request")
	}
}

func TestStats(t *testing.T) {
	f := newAPIFixture()
	f.leads.stages = map[string]int{"NEW": 12, "HOT": 3}
	f.attempts.counts = map[string]int{"sent": 40, "skipped": 9}
	f.pool.stats.Sent = 40
	f.budget.remaining = 160

	rec := f.request(t, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		LeadsByStage  map[string]int `json:"leads_by_stage"`
		AttemptsToday map[string]int `json:"attempts_today"`
		Pool          struct {
			Sent int64 `json:"sent"`
		} `json:"outreach_pool"`
		BudgetRemaining int `json:"sms_budget_remaining"`
	}
	decodeJSON(t, rec, &out)
	if out.LeadsByStage["HOT"] != 3 {
		t.Errorf("leads_by_stage = %v", out.LeadsByStage)
	}
	if out.AttemptsToday["sent"] != 40 {
		t.Errorf("attempts_today = %v", out.AttemptsToday)
	}
	if out.Pool.Sent != 40 {
		t.Errorf("outreach_pool.sent = %d", out.Pool.Sent)
	}
	if out.BudgetRemaining != 160 {
		t.Errorf("sms_budget_remaining = %d", out.BudgetRemaining)
	}
}

func TestTriggerNightly(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodPost, "/api/pipeline/nightly",
		map[string]any{"markets": []string{"LA-NW"}, "dry_run": true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		TaskID string `json:"task_id"`
	}
	decodeJSON(t, rec, &out)
	if out.TaskID != "task-np-1" {
		t.Errorf("task_id = %q", out.TaskID)
	}
	if len(f.pipe.gotOpts.Markets) != 1 || f.pipe.gotOpts.Markets[0] != "LA-NW" || !f.pipe.gotOpts.DryRun {
		t.Errorf("options = %+v", f.pipe.gotOpts)
	}
}

func TestTriggerNightly_AlreadyRunning(t *testing.T) {
	f := newAPIFixture()
	f.pipe.err = pipeline.ErrLockNotAcquired

	rec := f.request(t, http.MethodPost, "/api/pipeline/nightly", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Code string `json:"code"`
	}
	decodeJSON(t, rec, &out)
	if out.Code != "PIPELINE_RUNNING" {
		t.Errorf("code = %q, want PIPELINE_RUNNING", out.Code)
	}
}

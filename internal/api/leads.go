package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/phone"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/resolve"
)

// ListLeads answers GET /api/leads with filterable, pageable leads.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.LeadFilter{
		MarketCode:   q.Get("market"),
		Stage:        strings.ToUpper(q.Get("stage")),
		Status:       strings.ToLower(q.Get("status")),
		TCPASafeOnly: q.Get("tcpa_safe_only") == "true",
	}
	f.MinScore, _ = strconv.Atoi(q.Get("min_score"))
	f.Limit, f.Offset = limitOffset(r, 50, 500)

	leads, total, err := h.deps.Leads.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, ListResponse{Data: leads, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetLead answers GET /api/leads/{id}.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lead, err := h.deps.Leads.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

type updateLeadRequest struct {
	Status string `json:"status"`
}

// UpdateLeadStatus answers PATCH /api/leads/{id}. Only the operational
// status moves here; pipeline stage belongs to scoring and replies.
func (h *Handlers) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req updateLeadRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	status := domain.LeadStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !status.Valid() {
		httputil.BadRequest(w, "unknown status "+strconv.Quote(req.Status))
		return
	}

	if err := h.deps.Leads.SetStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	lead, err := h.deps.Leads.Get(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

type createLeadRequest struct {
	MarketCode       string  `json:"market_code"`
	ParcelNumber     string  `json:"parcel_number"`
	Parish           string  `json:"parish"`
	OwnerName        string  `json:"owner_name"`
	OwnerPhone       string  `json:"owner_phone,omitempty"`
	OwnerEmail       string  `json:"owner_email,omitempty"`
	MailingAddress   string  `json:"mailing_address,omitempty"`
	MailingZip       string  `json:"mailing_zip,omitempty"`
	SitusAddress     string  `json:"situs_address,omitempty"`
	SitusCity        string  `json:"situs_city,omitempty"`
	SitusState       string  `json:"situs_state,omitempty"`
	SitusZip         string  `json:"situs_zip,omitempty"`
	LandValue        float64 `json:"land_value,omitempty"`
	ImprovementValue float64 `json:"improvement_value,omitempty"`
	LotSizeAcres     float64 `json:"lot_size_acres,omitempty"`
	IsAdjudicated    bool    `json:"is_adjudicated,omitempty"`
	YearsDelinquent  int     `json:"years_delinquent,omitempty"`
}

// CreateLead answers POST /api/leads: a manual submission runs the same
// resolve-then-score path a roll row does, so re-posting the same
// parcel/owner pair lands on the existing lead instead of a duplicate.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	if h.deps.Resolver == nil {
		unavailable(w, "lead intake")
		return
	}
	var req createLeadRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ParcelNumber == "" || req.OwnerName == "" {
		httputil.BadRequest(w, "parcel_number and owner_name are required")
		return
	}
	market := h.cfg.Market(req.MarketCode)
	if market == nil {
		httputil.BadRequest(w, "unknown market "+strconv.Quote(req.MarketCode))
		return
	}
	if req.OwnerPhone != "" {
		if _, ok := phone.Normalize(req.OwnerPhone); !ok {
			httputil.BadRequest(w, "owner_phone is not a dialable US number")
			return
		}
	}

	res, err := h.deps.Resolver.Resolve(r.Context(), market.Code, resolve.RollRow{
		ParcelNumber:     req.ParcelNumber,
		Parish:           req.Parish,
		OwnerName:        req.OwnerName,
		OwnerPhone:       req.OwnerPhone,
		OwnerEmail:       req.OwnerEmail,
		MailingAddress:   req.MailingAddress,
		MailingZip:       req.MailingZip,
		SitusAddress:     req.SitusAddress,
		SitusCity:        req.SitusCity,
		SitusState:       req.SitusState,
		SitusZip:         req.SitusZip,
		LandValue:        req.LandValue,
		ImprovementValue: req.ImprovementValue,
		LotSizeAcres:     req.LotSizeAcres,
		IsAdjudicated:    req.IsAdjudicated,
		YearsDelinquent:  req.YearsDelinquent,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	lead := res.Lead
	if h.deps.Scorer != nil {
		if _, err := h.deps.Scorer.ScoreLead(r.Context(), lead); err != nil {
			logger.Warn("manual lead not scored", "lead_id", lead.ID, "error", err)
		} else if fresh, err := h.deps.Leads.Get(r.Context(), lead.ID); err == nil {
			lead = fresh
		}
	}

	status := http.StatusOK
	if res.NewLead {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, map[string]any{"lead": lead, "created": res.NewLead})
}

// LeadTimeline answers GET /api/leads/{id}/timeline, newest first.
func (h *Handlers) LeadTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.deps.Leads.Get(r.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	limit, _ := limitOffset(r, 100, 1000)
	events, err := h.deps.Timeline.List(r.Context(), id, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"lead_id": id, "events": events})
}

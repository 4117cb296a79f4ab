package api

import (
	"errors"
	"net/http"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/phone"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/buyers"
)

type createBuyerRequest struct {
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Email        string   `json:"email,omitempty"`
	MarketCodes  []string `json:"market_codes,omitempty"`
	Counties     []string `json:"counties,omitempty"`
	MinAcres     *float64 `json:"min_acres,omitempty"`
	MaxAcres     *float64 `json:"max_acres,omitempty"`
	PriceMin     *float64 `json:"price_min,omitempty"`
	PriceMax     *float64 `json:"price_max,omitempty"`
	VIP          bool     `json:"vip,omitempty"`
	POFVerified  bool     `json:"pof_verified,omitempty"`
	TargetSpread *float64 `json:"target_spread,omitempty"`
}

// CreateBuyer answers POST /api/buyers. The phone is normalized to
// E.164 on the way in so blasts never dispatch to a malformed number.
func (h *Handlers) CreateBuyer(w http.ResponseWriter, r *http.Request) {
	var req createBuyerRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	b := &domain.Buyer{
		Name:         req.Name,
		MarketCodes:  req.MarketCodes,
		Counties:     req.Counties,
		MinAcres:     req.MinAcres,
		MaxAcres:     req.MaxAcres,
		PriceMin:     req.PriceMin,
		PriceMax:     req.PriceMax,
		VIP:          req.VIP,
		POFVerified:  req.POFVerified,
		TargetSpread: req.TargetSpread,
	}
	if req.Phone != "" {
		normalized, ok := phone.Normalize(req.Phone)
		if !ok {
			httputil.BadRequest(w, "phone is not a dialable US number")
			return
		}
		b.Phone = &normalized
	}
	if req.Email != "" {
		b.Email = &req.Email
	}

	if err := h.deps.Buyers.Create(r.Context(), b); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, b)
}

// GetBuyer answers GET /api/buyers/{id}.
func (h *Handlers) GetBuyer(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.deps.Buyers.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "buyer not found")
		return
	}
	httputil.OK(w, b)
}

// ListBuyers answers GET /api/buyers.
func (h *Handlers) ListBuyers(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffset(r, 50, 500)
	list, err := h.deps.Buyers.List(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, ListResponse{Data: list, Total: len(list), Limit: limit, Offset: offset})
}

// BlastLead answers POST /api/blasts/{leadID}: match buyers against the
// lead's deal sheet and text each one a teaser. The path id wins over
// any lead_id in the body.
func (h *Handlers) BlastLead(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blaster == nil {
		unavailable(w, "buyer blasts")
		return
	}
	leadID, ok := idParam(w, r, "leadID")
	if !ok {
		return
	}
	var req buyers.Request
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	req.LeadID = leadID

	result, err := h.deps.Blaster.Blast(r.Context(), req)
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

package api

import (
	"net/http"
	"strconv"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/enrich"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/service/resolve"
	"github.com/acreage/leadline/internal/sms"
)

// PrepPack is everything an acquisitions caller wants open before
// dialing: the lead with its score breakdown, the parcel, third-party
// property facts, prior outreach, and the deal sheet.
type PrepPack struct {
	Lead    *domain.Lead             `json:"lead"`
	Parcel  *domain.Parcel           `json:"parcel,omitempty"`
	Facts   *enrich.PropertyFacts    `json:"facts,omitempty"`
	History []domain.OutreachAttempt `json:"history"`
	Sheet   *dealsheet.Sheet         `json:"sheet,omitempty"`
}

// CallPrepPack answers GET /api/calls/{id}/prep-pack. Only the lead
// itself is required; every enrichment that fails degrades to a missing
// section rather than failing the call prep.
func (h *Handlers) CallPrepPack(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lead, err := h.deps.Leads.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "lead not found")
		return
	}
	pack := PrepPack{Lead: lead, History: []domain.OutreachAttempt{}}

	parcel, err := h.deps.Parcels.Get(r.Context(), lead.ParcelID)
	if err != nil {
		logger.Warn("prep pack without parcel", "lead_id", id, "error", err)
	} else {
		pack.Parcel = parcel
	}

	if h.deps.Facts != nil && pack.Parcel != nil {
		facts, err := h.deps.Facts.Facts(r.Context(), pack.Parcel)
		if err != nil {
			logger.Warn("prep pack without property facts", "lead_id", id, "error", err)
		} else {
			pack.Facts = facts
		}
	}

	history, err := h.deps.Attempts.ListForLead(r.Context(), id, 50)
	if err != nil {
		logger.Warn("prep pack without outreach history", "lead_id", id, "error", err)
	} else {
		pack.History = history
	}

	if h.deps.Sheets != nil {
		sheet, err := h.deps.Sheets.Generate(r.Context(), id)
		if err != nil {
			logger.Warn("prep pack without deal sheet", "lead_id", id, "error", err)
		} else {
			pack.Sheet = sheet
		}
	}

	// ?discount_low=0.5&discount_high=0.65 previews the offer at a
	// different discount band without disturbing the cached sheet.
	lo := queryFloat(r, "discount_low")
	hi := queryFloat(r, "discount_high")
	if (lo > 0 || hi > 0) && pack.Sheet != nil && pack.Parcel != nil {
		pack.Sheet = h.deps.Sheets.Reprice(pack.Sheet, pack.Parcel, dealsheet.OfferParams{
			DiscountLow:  lo,
			DiscountHigh: hi,
		})
	}

	httputil.OK(w, pack)
}

// CallOffer answers GET /api/calls/{id}/offer: just the cash-offer
// range, for quoting mid-conversation.
func (h *Handlers) CallOffer(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sheets == nil {
		unavailable(w, "deal sheets")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sheet, err := h.deps.Sheets.Generate(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "lead not found")
		return
	}
	httputil.OK(w, sheet.Offer)
}

// CallScript answers GET /api/calls/{id}/script: the opening script
// rendered with this lead's name, parish, and offer range filled in.
func (h *Handlers) CallScript(w http.ResponseWriter, r *http.Request) {
	if h.deps.Templates == nil {
		unavailable(w, "templates")
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	lead, err := h.deps.Leads.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "lead not found")
		return
	}

	params := sms.Params{}
	if owner, err := h.deps.Owners.Get(r.Context(), lead.OwnerID); err == nil {
		if party, err := h.deps.Parties.Get(r.Context(), owner.PartyID); err == nil {
			params.FirstName = resolve.FirstName(party.DisplayName)
		}
	}
	if parcel, err := h.deps.Parcels.Get(r.Context(), lead.ParcelID); err == nil {
		params.Parish = parcel.Parish
		params.Acres = parcel.LotSizeAcres
	}
	if h.deps.Sheets != nil {
		if sheet, err := h.deps.Sheets.Generate(r.Context(), id); err == nil && sheet.Offer.CanMakeOffer {
			params.OfferLow = sheet.Offer.Low
			params.OfferHigh = sheet.Offer.High
		}
	}

	script, err := h.deps.Templates.CallScript(params)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"lead_id": strconv.FormatInt(id, 10), "script": script})
}

func queryFloat(r *http.Request, name string) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

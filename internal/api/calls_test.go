package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/service/dealsheet"
)

func TestCallPrepPack_Composes(t *testing.T) {
	f := newAPIFixture()
	f.attempts.attempts = []domain.OutreachAttempt{{ID: 1, LeadID: 1}, {ID: 2, LeadID: 1}}

	rec := f.request(t, http.MethodGet, "/api/calls/1/prep-pack", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var pack PrepPack
	decodeJSON(t, rec, &pack)
	if pack.Lead == nil || pack.Lead.ID != 1 {
		t.Fatalf("pack.Lead = %+v", pack.Lead)
	}
	if pack.Parcel == nil || pack.Parcel.Parish != "CADDO" {
		t.Errorf("pack.Parcel = %+v", pack.Parcel)
	}
	if pack.Facts == nil || pack.Facts.LotSizeAcres == nil || *pack.Facts.LotSizeAcres != 5.2 {
		t.Errorf("pack.Facts = %+v", pack.Facts)
	}
	if len(pack.History) != 2 {
		t.Errorf("history length = %d, want 2", len(pack.History))
	}
	if pack.Sheet == nil || !pack.Sheet.Offer.CanMakeOffer {
		t.Errorf("pack.Sheet = %+v", pack.Sheet)
	}
}

func TestCallPrepPack_MissingLead(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodGet, "/api/calls/999/prep-pack", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCallPrepPack_EnrichmentFailuresAreSoft(t *testing.T) {
	f := newAPIFixture()
	delete(f.parcels.byID, 20)
	f.facts.err = errors.New("vendor timeout")
	f.sheets.err = errors.New("sheet store offline")

	rec := f.request(t, http.MethodGet, "/api/calls/1/prep-pack", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var pack PrepPack
	decodeJSON(t, rec, &pack)
	if pack.Lead == nil {
		t.Fatal("lead missing from degraded pack")
	}
	if pack.Parcel != nil || pack.Facts != nil || pack.Sheet != nil {
		t.Errorf("degraded pack carries failed sections: %+v", pack)
	}
}

func TestCallPrepPack_DiscountOverride(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodGet, "/api/calls/1/prep-pack?discount_low=0.4&discount_high=0.55", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.sheets.gotParams == nil {
		t.Fatal("reprice never called")
	}
	if f.sheets.gotParams.DiscountLow != 0.4 || f.sheets.gotParams.DiscountHigh != 0.55 {
		t.Errorf("reprice params = %+v", f.sheets.gotParams)
	}
	var pack PrepPack
	decodeJSON(t, rec, &pack)
	if pack.Sheet.Offer.DiscountLow != 0.4 {
		t.Errorf("sheet offer = %+v, want repriced copy", pack.Sheet.Offer)
	}
}

func TestCallPrepPack_NoOverrideWithoutParams(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodGet, "/api/calls/1/prep-pack", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.sheets.gotParams != nil {
		t.Errorf("reprice called without query params: %+v", f.sheets.gotParams)
	}
}

func TestCallOffer(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodGet, "/api/calls/1/offer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var offer dealsheet.Offer
	decodeJSON(t, rec, &offer)
	if !offer.CanMakeOffer || offer.Low != 10000 || offer.High != 13000 {
		t.Errorf("offer = %+v", offer)
	}
}

func TestCallScript_RendersLeadContext(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodGet, "/api/calls/1/script", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Script string `json:"script"`
	}
	decodeJSON(t, rec, &out)
	for _, want := range []string{"John", "Caddo Parish", "$10,000", "$13,000"} {
		if !strings.Contains(out.Script, want) {
			t.Errorf("script missing %q:\n%s", want, out.Script)
		}
	}
}

func TestCreateBuyer(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodPost, "/api/buyers", map[string]any{
		"name":         "Gulf South Land Co",
		"phone":        "(504) 555-0188",
		"market_codes": []string{"LA-SE"},
		"min_acres":    2.0,
		"vip":          true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var b domain.Buyer
	decodeJSON(t, rec, &b)
	if b.ID != 1 || b.Name != "Gulf South Land Co" || !b.VIP {
		t.Errorf("buyer = %+v", b)
	}
	if b.Phone == nil || *b.Phone != "+15045550188" {
		t.Errorf("phone = %v, want normalized E.164", b.Phone)
	}

	rec = f.request(t, http.MethodPost, "/api/buyers", map[string]any{"phone": "123"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("nameless buyer status = %d, want 400", rec.Code)
	}
}

func TestGetAndListBuyers(t *testing.T) {
	f := newAPIFixture()
	f.buyerDB.byID = map[int64]*domain.Buyer{4: {ID: 4, Name: "Pineywoods Partners"}}
	f.buyerDB.list = []domain.Buyer{{ID: 4, Name: "Pineywoods Partners"}}

	rec := f.request(t, http.MethodGet, "/api/buyers/4", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/buyers/5", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing buyer status = %d, want 404", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/buyers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var out ListResponse
	decodeJSON(t, rec, &out)
	if out.Total != 1 {
		t.Errorf("list total = %d, want 1", out.Total)
	}
}

func TestBlastLead(t *testing.T) {
	f := newAPIFixture()

	rec := f.request(t, http.MethodPost, "/api/blasts/1",
		map[string]any{"lead_id": 999, "max_buyers": 3, "dry_run": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	// Path id wins over the body's lead_id.
	if f.blaster.gotReq.LeadID != 1 {
		t.Errorf("blast lead id = %d, want 1", f.blaster.gotReq.LeadID)
	}
	if f.blaster.gotReq.MaxBuyers != 3 || !f.blaster.gotReq.DryRun {
		t.Errorf("blast request = %+v", f.blaster.gotReq)
	}

	var out struct {
		Matched int `json:"matched"`
		Sent    int `json:"sent"`
	}
	decodeJSON(t, rec, &out)
	if out.Matched != 2 || out.Sent != 2 {
		t.Errorf("result = %+v", out)
	}
}

package resolve

import (
	"context"
	"fmt"
	"testing"

	"github.com/acreage/leadline/internal/domain"
)

// In-memory stores mirroring the upsert contracts.

type memStores struct {
	parcels map[string]*domain.Parcel // canonical id
	parties map[string]*domain.Party  // match hash
	owners  map[int64]*domain.Owner   // party id
	leads   map[string]*domain.Lead   // "owner:parcel"
}

func newMemStores() *memStores {
	return &memStores{
		parcels: make(map[string]*domain.Parcel),
		parties: make(map[string]*domain.Party),
		owners:  make(map[int64]*domain.Owner),
		leads:   make(map[string]*domain.Lead),
	}
}

type memParcels struct{ m *memStores }

func (s memParcels) Upsert(_ context.Context, p *domain.Parcel) error {
	if existing, ok := s.m.parcels[p.CanonicalParcelID]; ok {
		p.ID = existing.ID
		// New-roll-wins merge for the fields the repo merges.
		if p.SitusAddress == nil {
			p.SitusAddress = existing.SitusAddress
		}
		s.m.parcels[p.CanonicalParcelID] = p
		return nil
	}
	p.ID = int64(len(s.m.parcels) + 1)
	s.m.parcels[p.CanonicalParcelID] = p
	return nil
}

type memParties struct{ m *memStores }

func (s memParties) Upsert(_ context.Context, p *domain.Party) error {
	if existing, ok := s.m.parties[p.MatchHash]; ok {
		p.ID = existing.ID
		return nil
	}
	p.ID = int64(len(s.m.parties) + 1)
	s.m.parties[p.MatchHash] = p
	return nil
}

type memOwners struct{ m *memStores }

func (s memOwners) Upsert(_ context.Context, o *domain.Owner) error {
	if existing, ok := s.m.owners[o.PartyID]; ok {
		o.ID = existing.ID
		// Gap-fill: keep the first phone seen.
		if existing.PhonePrimary != nil {
			o.PhonePrimary = existing.PhonePrimary
			o.IsTCPASafe = existing.IsTCPASafe
		}
		s.m.owners[o.PartyID] = o
		return nil
	}
	o.ID = int64(len(s.m.owners) + 1)
	s.m.owners[o.PartyID] = o
	return nil
}

type memLeads struct{ m *memStores }

func (s memLeads) Upsert(_ context.Context, ownerID, parcelID int64, marketCode string) (*domain.Lead, bool, error) {
	key := fmt.Sprintf("%d:%d", ownerID, parcelID)
	if existing, ok := s.m.leads[key]; ok {
		return existing, false, nil
	}
	lead := &domain.Lead{
		ID:            int64(len(s.m.leads) + 1),
		OwnerID:       ownerID,
		ParcelID:      parcelID,
		MarketCode:    marketCode,
		PipelineStage: domain.StageNew,
		Status:        domain.LeadStatusNew,
	}
	s.m.leads[key] = lead
	return lead, true, nil
}

func newTestResolver(m *memStores) *Resolver {
	return NewResolver(memParcels{m}, memParties{m}, memOwners{m}, memLeads{m})
}

func TestCanonicalParcelID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"123-456-789", "123456789000"},
		{"0506912345ab", "0506912345AB"},
		{" 05069.12345.AB.99 ", "0506912345AB"}, // truncates at 12
		{"", "000000000000"},
		{"a", "A00000000000"},
	}
	for _, tt := range tests {
		got := CanonicalParcelID(tt.raw)
		if got != tt.want {
			t.Errorf("CanonicalParcelID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		if len(got) != 12 {
			t.Errorf("CanonicalParcelID(%q) length %d", tt.raw, len(got))
		}
		// Idempotent: normalizing the normalized form changes nothing.
		if again := CanonicalParcelID(got); again != got {
			t.Errorf("not idempotent: %q -> %q", got, again)
		}
	}
}

func TestMatchHash(t *testing.T) {
	a := MatchHash(NormalizeName("Smith,  John"), NormalizeZip("71101-2345"))
	b := MatchHash(NormalizeName("SMITH, JOHN"), NormalizeZip("71101"))
	if a != b {
		t.Error("case and zip+4 variants should hash identically")
	}
	c := MatchHash(NormalizeName("SMITH, JOHN"), NormalizeZip("71102"))
	if a == c {
		t.Error("different zip must produce a different hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length %d, want 64 hex chars", len(a))
	}
}

func TestResolve_CreatesAllEntities(t *testing.T) {
	m := newMemStores()
	r := newTestResolver(m)

	row := RollRow{
		ParcelNumber:    "050-691-2345",
		Parish:          "caddo",
		OwnerName:       "SMITH, JOHN",
		MailingZip:      "71101",
		OwnerPhone:      "(318) 555-0142",
		SitusAddress:    "123 PINE RD",
		LandValue:       12000,
		LotSizeAcres:    11.5,
		IsAdjudicated:   true,
		YearsDelinquent: 3,
	}

	res, err := r.Resolve(context.Background(), "NWLA", row)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if res.Parcel.CanonicalParcelID != "050691234500" {
		t.Errorf("canonical id = %s", res.Parcel.CanonicalParcelID)
	}
	if res.Parcel.Parish != "CADDO" {
		t.Errorf("parish = %s", res.Parcel.Parish)
	}
	if res.Party.NormalizedName != "SMITH, JOHN" {
		t.Errorf("normalized name = %s", res.Party.NormalizedName)
	}
	if res.Owner.PhonePrimary == nil || *res.Owner.PhonePrimary != "+13185550142" {
		t.Errorf("phone = %v", res.Owner.PhonePrimary)
	}
	if !res.Owner.IsTCPASafe {
		t.Error("mobile-looking phone should be tcpa safe")
	}
	if !res.NewLead {
		t.Error("first resolve should create the lead")
	}
	if res.Lead.PipelineStage != domain.StageNew || res.Lead.MotivationScore != 0 {
		t.Errorf("new lead state: stage=%s score=%d", res.Lead.PipelineStage, res.Lead.MotivationScore)
	}
}

func TestResolve_ReingestIsNoop(t *testing.T) {
	m := newMemStores()
	r := newTestResolver(m)

	row := RollRow{
		ParcelNumber: "12345",
		Parish:       "BOSSIER",
		OwnerName:    "DOE, JANE",
		MailingZip:   "71111",
	}

	first, err := r.Resolve(context.Background(), "NWLA", row)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), "NWLA", row)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if second.NewLead {
		t.Error("reingest should not create a second lead")
	}
	if first.Lead.ID != second.Lead.ID {
		t.Error("reingest resolved to a different lead")
	}
	if len(m.parcels) != 1 || len(m.parties) != 1 || len(m.owners) != 1 || len(m.leads) != 1 {
		t.Errorf("counts after reingest: parcels=%d parties=%d owners=%d leads=%d",
			len(m.parcels), len(m.parties), len(m.owners), len(m.leads))
	}
}

func TestResolve_TollFreePhoneNotTCPASafe(t *testing.T) {
	m := newMemStores()
	r := newTestResolver(m)

	res, err := r.Resolve(context.Background(), "NWLA", RollRow{
		ParcelNumber: "99",
		OwnerName:    "ACME HOLDINGS LLC",
		OwnerPhone:   "800-555-0100",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Owner.PhonePrimary == nil {
		t.Fatal("toll-free number should still be stored")
	}
	if res.Owner.IsTCPASafe {
		t.Error("toll-free number must not be tcpa safe")
	}
}

func TestResolve_RejectsRowsMissingKeys(t *testing.T) {
	r := newTestResolver(newMemStores())

	if _, err := r.Resolve(context.Background(), "NWLA", RollRow{OwnerName: "X Y"}); err == nil {
		t.Error("expected error for missing parcel number")
	}
	if _, err := r.Resolve(context.Background(), "NWLA", RollRow{ParcelNumber: "1"}); err == nil {
		t.Error("expected error for missing owner name")
	}
}

func TestResolveBatch_CountsFailuresWithoutAborting(t *testing.T) {
	m := newMemStores()
	r := newTestResolver(m)

	rows := []RollRow{
		{ParcelNumber: "1", OwnerName: "A ONE", MailingZip: "71101"},
		{OwnerName: "NO PARCEL"}, // bad row
		{ParcelNumber: "2", OwnerName: "B TWO", MailingZip: "71101"},
	}

	var stats Stats
	if err := r.ResolveBatch(context.Background(), "NWLA", rows, &stats); err != nil {
		t.Fatalf("batch: %v", err)
	}

	if got := stats.Rows.Load(); got != 3 {
		t.Errorf("rows = %d", got)
	}
	if got := stats.Errors.Load(); got != 1 {
		t.Errorf("errors = %d", got)
	}
	if got := stats.NewLeads.Load(); got != 2 {
		t.Errorf("new leads = %d", got)
	}
}

func TestResolveBatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stats Stats
	err := newTestResolver(newMemStores()).ResolveBatch(ctx, "NWLA", []RollRow{{ParcelNumber: "1", OwnerName: "A B"}}, &stats)
	if err == nil {
		t.Fatal("expected context error")
	}
	if stats.Rows.Load() != 0 {
		t.Error("no rows should process after cancel")
	}
}

func TestFirstName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SMITH, JOHN A", "John"},
		{"Jane Doe", "Jane"},
		{"ACME HOLDINGS LLC", ""},
		{"SMITH FAMILY TRUST", ""},
		{"ESTATE OF R JONES", ""},
		{"", ""},
		{"X", ""},
		{"SMITH,", ""},
	}
	for _, tt := range tests {
		if got := FirstName(tt.in); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

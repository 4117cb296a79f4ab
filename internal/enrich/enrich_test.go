package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acreage/leadline/internal/domain"
)

func strRef(s string) *string { return &s }

type memParcelStore struct {
	missing []domain.Parcel
	coords  map[int64]Geocode
	lists   int
}

func (m *memParcelStore) ListMissingCoordinates(_ context.Context, _ string, limit int) ([]domain.Parcel, error) {
	m.lists++
	if limit > len(m.missing) {
		limit = len(m.missing)
	}
	out := make([]domain.Parcel, limit)
	copy(out, m.missing[:limit])
	return out, nil
}

func (m *memParcelStore) SetCoordinates(_ context.Context, id int64, lat, lng float64) error {
	if m.coords == nil {
		m.coords = make(map[int64]Geocode)
	}
	m.coords[id] = Geocode{Lat: lat, Lng: lng}
	return nil
}

type verification struct {
	deliverable  bool
	standardized *string
}

type memPartyStore struct {
	unverified []domain.Party
	verified   map[int64]verification
	lists      int
}

func (m *memPartyStore) ListUnverifiedMailing(_ context.Context, _ string, limit int) ([]domain.Party, error) {
	m.lists++
	if limit > len(m.unverified) {
		limit = len(m.unverified)
	}
	out := make([]domain.Party, limit)
	copy(out, m.unverified[:limit])
	return out, nil
}

func (m *memPartyStore) SetMailingVerification(_ context.Context, id int64, deliverable bool, standardized *string) error {
	if m.verified == nil {
		m.verified = make(map[int64]verification)
	}
	m.verified[id] = verification{deliverable: deliverable, standardized: standardized}
	return nil
}

type fakeGeocoder struct {
	res   map[string]*Geocode
	err   error
	calls int
}

func (f *fakeGeocoder) GeocodeAddress(_ context.Context, address string) (*Geocode, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.res[address], nil
}

type fakeVerifier struct {
	res   map[string]*Verification
	err   error
	calls int
}

func (f *fakeVerifier) VerifyAddress(_ context.Context, address, _ string) (*Verification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v := f.res[address]; v != nil {
		return v, nil
	}
	return &Verification{}, nil
}

type fakeLookup struct {
	facts *PropertyFacts
	calls int
}

func (f *fakeLookup) LookupParcel(_ context.Context, _, _ string) (*PropertyFacts, error) {
	f.calls++
	return f.facts, nil
}

func geocodableParcel(id int64, addr string) domain.Parcel {
	return domain.Parcel{
		ID:           id,
		MarketCode:   "LA-NW",
		Parish:       "CADDO",
		SitusAddress: strRef(addr),
		City:         strRef("SHREVEPORT"),
		State:        strRef("LA"),
		PostalCode:   strRef("71101"),
	}
}

func TestRun_GeocodesParcels(t *testing.T) {
	parcels := &memParcelStore{missing: []domain.Parcel{
		geocodableParcel(1, "12 OAK ST"),
		geocodableParcel(2, "UNKNOWN TRACT"),
	}}
	geo := &fakeGeocoder{res: map[string]*Geocode{
		"12 OAK ST, SHREVEPORT, LA, 71101": {Lat: 32.52, Lng: -93.75},
	}}

	svc := NewService(Stores{Parcels: parcels, Parties: &memPartyStore{}}, nil, geo, nil)
	sum, err := svc.Run(context.Background(), "LA-NW", 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Geocoded != 1 || sum.GeocodeMisses != 1 || sum.Errors != 0 {
		t.Errorf("summary = %+v, want 1 geocoded, 1 miss", sum)
	}
	if got := parcels.coords[1]; got.Lat != 32.52 || got.Lng != -93.75 {
		t.Errorf("parcel 1 coords = %+v", got)
	}
	if _, ok := parcels.coords[2]; ok {
		t.Error("missed parcel should not be written")
	}
}

func TestRun_VerifiesParties(t *testing.T) {
	parties := &memPartyStore{unverified: []domain.Party{
		{ID: 10, RawMailingAddress: strRef("12 oak street"), NormalizedZip: "71101"},
		{ID: 11, RawMailingAddress: strRef("99 NOWHERE RD"), NormalizedZip: "00000"},
	}}
	ver := &fakeVerifier{res: map[string]*Verification{
		"12 oak street": {Deliverable: true, Standardized: "12 OAK ST"},
	}}

	svc := NewService(Stores{Parcels: &memParcelStore{}, Parties: parties}, ver, nil, nil)
	sum, err := svc.Run(context.Background(), "LA-NW", 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Verified != 2 || sum.Deliverable != 1 {
		t.Errorf("summary = %+v, want 2 verified, 1 deliverable", sum)
	}
	got := parties.verified[10]
	if !got.deliverable || got.standardized == nil || *got.standardized != "12 OAK ST" {
		t.Errorf("party 10 verification = %+v", got)
	}
	miss := parties.verified[11]
	if miss.deliverable || miss.standardized != nil {
		t.Errorf("party 11 verification = %+v, want undeliverable", miss)
	}
}

func TestRun_AdapterFailureIsSoft(t *testing.T) {
	parcels := &memParcelStore{missing: []domain.Parcel{geocodableParcel(1, "A"), geocodableParcel(2, "B")}}
	geo := &fakeGeocoder{err: errors.New("quota exhausted")}

	svc := NewService(Stores{Parcels: parcels, Parties: &memPartyStore{}}, nil, geo, nil)
	sum, err := svc.Run(context.Background(), "LA-NW", 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Errors != 2 || geo.calls != 2 {
		t.Errorf("errors = %d, calls = %d; one failure must not stop the pass", sum.Errors, geo.calls)
	}
}

func TestRun_DisabledAdaptersSkipStores(t *testing.T) {
	parcels := &memParcelStore{missing: []domain.Parcel{geocodableParcel(1, "A")}}
	parties := &memPartyStore{unverified: []domain.Party{{ID: 1, RawMailingAddress: strRef("X")}}}

	svc := NewService(Stores{Parcels: parcels, Parties: parties}, nil, nil, nil)
	sum, err := svc.Run(context.Background(), "LA-NW", 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if parcels.lists != 0 || parties.lists != 0 {
		t.Error("disabled adapters should not touch the stores")
	}
	if sum.Geocoded != 0 || sum.Verified != 0 {
		t.Errorf("summary = %+v, want empty", sum)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parcels := &memParcelStore{missing: []domain.Parcel{geocodableParcel(1, "A")}}
	svc := NewService(Stores{Parcels: parcels, Parties: &memPartyStore{}}, nil, &fakeGeocoder{}, nil)

	_, err := svc.Run(ctx, "LA-NW", 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFacts(t *testing.T) {
	parcel := &domain.Parcel{CanonicalParcelID: "000000123456", Parish: "CADDO"}

	svc := NewService(Stores{}, nil, nil, nil)
	if facts, err := svc.Facts(context.Background(), parcel); err != nil || facts != nil {
		t.Errorf("disabled lookup = %v/%v, want nil/nil", facts, err)
	}

	est := 42000.0
	lk := &fakeLookup{facts: &PropertyFacts{EstimatedValue: &est}}
	svc = NewService(Stores{}, nil, nil, lk)
	facts, err := svc.Facts(context.Background(), parcel)
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	if facts == nil || *facts.EstimatedValue != 42000 {
		t.Errorf("facts = %+v", facts)
	}
}

func TestSitusLine(t *testing.T) {
	p := geocodableParcel(1, "12 OAK ST")
	if got := situsLine(&p); got != "12 OAK ST, SHREVEPORT, LA, 71101" {
		t.Errorf("situsLine = %q", got)
	}

	bare := domain.Parcel{SitusAddress: strRef("RURAL TRACT 9")}
	if got := situsLine(&bare); got != "RURAL TRACT 9" {
		t.Errorf("situsLine = %q", got)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Now()
	c := newTTLCache[int](time.Hour)
	c.now = func() time.Time { return now }

	c.put("k", 7)
	if v, ok := c.get("k"); !ok || v != 7 {
		t.Fatalf("get = %d/%v, want 7/true", v, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.get("k"); ok {
		t.Error("expired entry still served")
	}
}

package buyers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

type memDeals struct {
	rows    map[string]*domain.BuyerDeal
	nextID  int64
	upserts int
	marked  []int64
	markErr error
}

func dealKey(buyerID, leadID int64) string { return fmt.Sprintf("%d:%d", buyerID, leadID) }

func (m *memDeals) Upsert(_ context.Context, buyerID, leadID int64, score int) (*domain.BuyerDeal, error) {
	m.upserts++
	k := dealKey(buyerID, leadID)
	if d, ok := m.rows[k]; ok {
		d.MatchScore = score
		cp := *d
		return &cp, nil
	}
	m.nextID++
	d := &domain.BuyerDeal{ID: m.nextID, BuyerID: buyerID, LeadID: leadID, Stage: domain.DealNew, MatchScore: score}
	m.rows[k] = d
	cp := *d
	return &cp, nil
}

func (m *memDeals) MarkBlastSent(_ context.Context, id int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, id)
	for _, d := range m.rows {
		if d.ID == id {
			now := time.Now()
			d.Stage = domain.DealSent
			d.BlastSentAt = &now
		}
	}
	return nil
}

type memLeads struct {
	leads map[int64]*domain.Lead
}

func (m *memLeads) Get(_ context.Context, id int64) (*domain.Lead, error) {
	l, ok := m.leads[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

type finalized struct {
	id         int64
	status     domain.AttemptStatus
	result     string
	externalID *string
}

type memAttempts struct {
	nextID   int64
	keys     map[string]bool
	reserved []*domain.OutreachAttempt
	finals   []finalized
}

func (m *memAttempts) Reserve(_ context.Context, a *domain.OutreachAttempt) error {
	if a.IdempotencyKey != nil && m.keys[*a.IdempotencyKey] {
		return postgres.ErrDuplicate
	}
	m.nextID++
	a.ID = m.nextID
	if a.IdempotencyKey != nil {
		m.keys[*a.IdempotencyKey] = true
	}
	cp := *a
	m.reserved = append(m.reserved, &cp)
	return nil
}

func (m *memAttempts) Finalize(_ context.Context, id int64, status domain.AttemptStatus, result string, externalID, _ *string, _ *time.Time) error {
	m.finals = append(m.finals, finalized{id: id, status: status, result: result, externalID: externalID})
	return nil
}

type sentSMS struct {
	to   string
	body string
}

type fakeGateway struct {
	fail map[string]*twilio.SendResult
	sent []sentSMS
}

func (g *fakeGateway) SendSMS(_ context.Context, to, body string) (*twilio.SendResult, error) {
	g.sent = append(g.sent, sentSMS{to: to, body: body})
	if res, ok := g.fail[to]; ok {
		return res, nil
	}
	return &twilio.SendResult{Success: true, Sid: "SM-" + to, Status: "queued", SentAt: time.Now().UTC()}, nil
}

type fakeSheets struct {
	sheet *dealsheet.Sheet
	err   error
	calls int
}

func (f *fakeSheets) Generate(_ context.Context, _ int64) (*dealsheet.Sheet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.sheet
	return &cp, nil
}

type memTimeline struct {
	events []string
}

func (m *memTimeline) Append(_ context.Context, _ int64, eventType string, _ any) error {
	m.events = append(m.events, eventType)
	return nil
}

type blastFixture struct {
	buyers   *memBuyers
	deals    *memDeals
	leads    *memLeads
	attempts *memAttempts
	timeline *memTimeline
	gateway  *fakeGateway
	sheets   *fakeSheets
	svc      *Service
}

func marketBuyer(id int64, name, phone string) domain.Buyer {
	b := domain.Buyer{ID: id, Name: name, MarketCodes: []string{"LA-NW"}}
	if phone != "" {
		b.Phone = &phone
	}
	return b
}

func newBlastFixture(dryRun bool, list ...domain.Buyer) *blastFixture {
	f := &blastFixture{
		buyers: &memBuyers{
			buyers: buyersByID(list),
			market: map[string][]domain.Buyer{"LA-NW": list},
		},
		deals:    &memDeals{rows: map[string]*domain.BuyerDeal{}},
		leads:    &memLeads{leads: map[int64]*domain.Lead{1: {ID: 1, MarketCode: "LA-NW", MotivationScore: 82}}},
		attempts: &memAttempts{keys: map[string]bool{}},
		timeline: &memTimeline{},
		gateway:  &fakeGateway{fail: map[string]*twilio.SendResult{}},
		sheets: &fakeSheets{sheet: &dealsheet.Sheet{
			LeadID: 1, Parish: "CADDO", Acres: floatRef(12.5),
			Offer:           dealsheet.Offer{CanMakeOffer: true, Low: 11000, High: 14000, DiscountLow: 0.55, DiscountHigh: 0.70},
			RetailEstimate:  floatRef(17500),
			AvailableSpread: floatRef(0.25),
		}},
	}
	f.svc = NewService(
		config.BuyersConfig{MinMatchScore: 50, MaxPerBlast: 10},
		dryRun,
		Stores{Buyers: f.buyers, Deals: f.deals, Leads: f.leads, Attempts: f.attempts, Timeline: f.timeline},
		f.sheets,
		sms.NewEngine(),
		f.gateway,
		nil,
	)
	return f
}

func TestBlast_SendsToMatchedBuyers(t *testing.T) {
	f := newBlastFixture(false,
		marketBuyer(5, "Pine Belt Land Co", "+13185550170"),
		marketBuyer(6, "Red River Holdings", "+13185550171"),
	)

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Matched != 2 || res.Sent != 2 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	if len(f.gateway.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(f.gateway.sent))
	}
	body := f.gateway.sent[0].body
	if !strings.Contains(body, "12.5 acres in Caddo Parish") || !strings.Contains(body, "asking $15,800") {
		t.Errorf("teaser body = %q", body)
	}

	if len(f.attempts.reserved) != 2 {
		t.Fatalf("reserved %d attempts, want 2", len(f.attempts.reserved))
	}
	first := f.attempts.reserved[0]
	if first.MessageContext != domain.MessageContext("buyer_blast:5") {
		t.Errorf("context = %q", first.MessageContext)
	}
	wantKey := outreach.IdempotencyKey(1, blastContext(5), "")
	if first.IdempotencyKey == nil || *first.IdempotencyKey != wantKey {
		t.Errorf("idempotency key = %v, want %s", first.IdempotencyKey, wantKey)
	}

	if len(f.deals.marked) != 2 {
		t.Errorf("marked deals = %v, want both", f.deals.marked)
	}
	if f.attempts.finals[0].status != domain.AttemptSent || f.attempts.finals[0].result != domain.ResultSent {
		t.Errorf("finalize = %+v", f.attempts.finals[0])
	}
	if len(f.buyers.recorded) != 2 {
		t.Errorf("deal counters bumped for %v, want both buyers", f.buyers.recorded)
	}
	if len(f.timeline.events) != 2 || f.timeline.events[0] != "buyer_blast_sent" {
		t.Errorf("timeline = %v", f.timeline.events)
	}
}

func TestBlast_SkipsAlreadyBlastedDeal(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))
	sentAt := time.Now().Add(-48 * time.Hour)
	f.deals.rows[dealKey(5, 1)] = &domain.BuyerDeal{
		ID: 77, BuyerID: 5, LeadID: 1, Stage: domain.DealSent, BlastSentAt: &sentAt,
	}

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Sent != 0 || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Outcomes[0].Status != StatusAlreadyBlasted {
		t.Errorf("outcome = %+v", res.Outcomes[0])
	}
	if len(f.gateway.sent) != 0 {
		t.Error("blasted a buyer who already has the deal")
	}
}

func TestBlast_SkipsBuyerWithoutPhone(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(6, "Mailbox Money LLC", ""))

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Skipped != 1 || res.Outcomes[0].Status != StatusNoPhone {
		t.Fatalf("result = %+v", res)
	}
	// The pairing is still recorded so the match shows up in the funnel.
	if f.deals.upserts != 1 {
		t.Errorf("upserts = %d, want 1", f.deals.upserts)
	}
}

func TestBlast_DuplicateSlotSkips(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))
	f.attempts.keys[outreach.IdempotencyKey(1, blastContext(5), "")] = true

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Skipped != 1 || res.Outcomes[0].Status != StatusDuplicate {
		t.Fatalf("result = %+v", res)
	}
	if len(f.deals.marked) != 0 || len(f.gateway.sent) != 0 {
		t.Error("duplicate slot must stop before the stamp and the wire")
	}
}

func TestBlast_DryRunStopsBeforeLedger(t *testing.T) {
	f := newBlastFixture(false,
		marketBuyer(5, "Pine Belt Land Co", "+13185550170"),
		marketBuyer(6, "Red River Holdings", "+13185550171"),
	)

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1, DryRun: true})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.DryRun != 2 || res.Sent != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(f.attempts.reserved) != 0 || len(f.deals.marked) != 0 || len(f.gateway.sent) != 0 {
		t.Error("dry run must not reserve, stamp, or send")
	}
	// Match scores are still persisted for the funnel.
	if f.deals.upserts != 2 {
		t.Errorf("upserts = %d, want 2", f.deals.upserts)
	}
}

func TestBlast_GlobalDryRunForcesSimulation(t *testing.T) {
	f := newBlastFixture(true, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.DryRun != 1 || len(f.gateway.sent) != 0 {
		t.Fatalf("result = %+v, sent = %v", res, f.gateway.sent)
	}
}

func TestBlast_ExplicitBuyersBypassThreshold(t *testing.T) {
	low := marketBuyer(8, "Out of Area Buyer", "+13185550180")
	low.Counties = []string{"BOSSIER"}
	low.MinAcres = floatRef(50)
	f := newBlastFixture(false, low)

	// The matcher filters this buyer out at the default threshold.
	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Matched != 0 {
		t.Fatalf("matched = %d, want 0", res.Matched)
	}

	// An explicit list is an operator override.
	res, err = f.svc.Blast(context.Background(), Request{LeadID: 1, BuyerIDs: []int64{8, 404}})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Matched != 1 || res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if deal := f.deals.rows[dealKey(8, 1)]; deal == nil || deal.MatchScore != 45 {
		t.Errorf("deal = %+v, want recorded score 45", deal)
	}
}

func TestBlast_GatewayFailureFinalizesAttempt(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))
	f.gateway.fail["+13185550170"] = &twilio.SendResult{
		Success: false, Result: domain.ResultInvalidNumber, ErrorMsg: "landline",
	}

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Failed != 1 || res.Outcomes[0].Status != StatusFailed {
		t.Fatalf("result = %+v", res)
	}
	last := f.attempts.finals[len(f.attempts.finals)-1]
	if last.status != domain.AttemptFailed || last.result != domain.ResultInvalidNumber {
		t.Errorf("finalize = %+v", last)
	}
	if len(f.buyers.recorded) != 0 {
		t.Error("failed send must not bump the buyer's deal counter")
	}
	// A failed wire call after the stamp burns this buyer's slot rather
	// than risking a double text.
	if len(f.deals.marked) != 1 {
		t.Errorf("marked = %v", f.deals.marked)
	}
}

func TestBlast_StampFailureAbortsSend(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))
	f.deals.markErr = errors.New("connection reset")

	res, err := f.svc.Blast(context.Background(), Request{LeadID: 1})
	if err != nil {
		t.Fatalf("Blast() error = %v", err)
	}
	if res.Failed != 1 || len(f.gateway.sent) != 0 {
		t.Fatalf("result = %+v, sent = %v", res, f.gateway.sent)
	}
	last := f.attempts.finals[len(f.attempts.finals)-1]
	if last.status != domain.AttemptFailed || last.result != "blast_aborted" {
		t.Errorf("finalize = %+v", last)
	}
}

func TestBlast_UnknownLead(t *testing.T) {
	f := newBlastFixture(false)
	if _, err := f.svc.Blast(context.Background(), Request{LeadID: 404}); !errors.Is(err, postgres.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestBlast_SheetFailurePropagates(t *testing.T) {
	f := newBlastFixture(false, marketBuyer(5, "Pine Belt Land Co", "+13185550170"))
	f.sheets.err = errors.New("sheet store down")

	if _, err := f.svc.Blast(context.Background(), Request{LeadID: 1}); err == nil {
		t.Fatal("Blast() error = nil, want sheet failure")
	}
}

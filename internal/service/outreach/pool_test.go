package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/sms"
	"github.com/acreage/leadline/internal/twilio"
)

func TestPool_RunBatchMixedOutcomes(t *testing.T) {
	f := newFixture()

	// Lead 2's owner opted out; lead 3 already holds today's intro slot.
	f.owners.owners[2] = &domain.Owner{ID: 2, PartyID: 1, PhonePrimary: strRef("318-555-0199"), OptOut: true}
	f.leads.leads[2] = &domain.Lead{ID: 2, OwnerID: 2, ParcelID: 1}
	f.owners.owners[3] = &domain.Owner{ID: 3, PartyID: 1, PhonePrimary: strRef("318-555-0177")}
	f.leads.leads[3] = &domain.Lead{ID: 3, OwnerID: 3, ParcelID: 1}

	key := IdempotencyKey(3, domain.ContextIntro, DateKey(time.Now()))
	if err := f.attempts.Reserve(context.Background(), &domain.OutreachAttempt{
		LeadID: 3, IdempotencyKey: &key, Channel: "sms", MessageContext: domain.ContextIntro,
	}); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	pool := NewPool(f.dispatcher(), 2, 8)
	pool.Start(context.Background())

	leads := []domain.Lead{{ID: 1}, {ID: 2}, {ID: 3}}
	batch, err := pool.RunBatch(context.Background(), Request{Context: domain.ContextIntro}, leads)
	if err != nil {
		t.Fatalf("RunBatch() error = %v", err)
	}
	pool.Stop()

	if got := batch.Sent.Load(); got != 1 {
		t.Errorf("batch sent = %d, want 1", got)
	}
	if got := batch.Skipped.Load(); got != 2 {
		t.Errorf("batch skipped = %d, want 2", got)
	}
	if got := batch.Failed.Load(); got != 0 {
		t.Errorf("batch failed = %d, want 0", got)
	}
	if got := f.gateway.callCount(); got != 1 {
		t.Errorf("gateway calls = %d, want 1", got)
	}

	stats := pool.Stats()
	if stats.Processed != 3 || stats.Sent != 1 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want processed 3 sent 1 skipped 2", stats)
	}
}

func TestPool_SubmitAndStopDrains(t *testing.T) {
	f := newFixture()
	pool := NewPool(f.dispatcher(), 1, 4)
	pool.Start(context.Background())

	if err := pool.Submit(context.Background(), Request{LeadID: 1, Context: domain.ContextIntro}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	pool.Stop()

	if got := f.gateway.callCount(); got != 1 {
		t.Errorf("gateway calls = %d, want 1", got)
	}
	if stats := pool.Stats(); stats.Sent != 1 {
		t.Errorf("stats sent = %d, want 1", stats.Sent)
	}
}

// blockingGateway holds each send until released, so tests can cancel a
// batch at a known point.
type blockingGateway struct {
	inner   *fakeGateway
	started chan struct{}
	release chan struct{}
}

func (g *blockingGateway) SendSMS(ctx context.Context, to, body string) (*twilio.SendResult, error) {
	g.started <- struct{}{}
	<-g.release
	return g.inner.SendSMS(ctx, to, body)
}

func TestPool_RunBatchCancelSkipsQueuedRemainder(t *testing.T) {
	f := newFixture()
	f.owners.owners[2] = &domain.Owner{ID: 2, PartyID: 1, PhonePrimary: strRef("318-555-0188")}
	f.leads.leads[2] = &domain.Lead{ID: 2, OwnerID: 2, ParcelID: 1}

	gw := &blockingGateway{
		inner:   f.gateway,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher(f.cfg, Stores{
		Leads:    f.leads,
		Owners:   f.owners,
		Parcels:  f.parcels,
		Parties:  f.parties,
		Attempts: f.attempts,
		Timeline: f.timeline,
	}, gw, sms.NewEngine())

	pool := NewPool(d, 1, 8)
	pool.Start(context.Background())
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		batch *Batch
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		b, err := pool.RunBatch(ctx, Request{Context: domain.ContextIntro}, []domain.Lead{{ID: 1}, {ID: 2}})
		resCh <- result{batch: b, err: err}
	}()

	<-gw.started // first send is in flight
	cancel()
	close(gw.release)

	res := <-resCh
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("RunBatch() error = %v, want context.Canceled", res.err)
	}
	if got := res.batch.Sent.Load(); got != 1 {
		t.Errorf("batch sent = %d, want 1 (in-flight job finishes)", got)
	}
	if got := res.batch.Skipped.Load(); got != 1 {
		t.Errorf("batch skipped = %d, want 1 (queued job dropped)", got)
	}
	if got := f.gateway.callCount(); got != 1 {
		t.Errorf("gateway calls = %d, want 1", got)
	}
}

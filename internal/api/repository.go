package api

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/enrich"
	"github.com/acreage/leadline/internal/pipeline"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/service/buyers"
	"github.com/acreage/leadline/internal/service/conversation"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/service/resolve"
	"github.com/acreage/leadline/internal/sms"
)

// LeadStore is the lead surface the handlers read and mutate.
type LeadStore interface {
	Get(ctx context.Context, id int64) (*domain.Lead, error)
	List(ctx context.Context, f postgres.LeadFilter) ([]domain.Lead, int, error)
	SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error
	ListOutreachCandidates(ctx context.Context, marketCode string, minScore, limit int) ([]domain.Lead, error)
	CountByStage(ctx context.Context, marketCode string) (map[string]int, error)
}

// TimelineStore reads a lead's event history.
type TimelineStore interface {
	List(ctx context.Context, leadID int64, limit int) ([]domain.TimelineEvent, error)
}

// TaskStore records and serves background task rows.
type TaskStore interface {
	Create(ctx context.Context, taskType string, params any) (*domain.BackgroundTask, error)
	Start(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, result any) error
	Fail(ctx context.Context, id int64, errMsg string, result any) error
	GetByTaskID(ctx context.Context, taskID string) (*domain.BackgroundTask, error)
}

// AttemptStore serves outreach history and takes delivery receipts.
type AttemptStore interface {
	ListForLead(ctx context.Context, leadID int64, limit int) ([]domain.OutreachAttempt, error)
	MarkDelivered(ctx context.Context, externalID string, at time.Time) error
	MarkUndelivered(ctx context.Context, externalID, errMsg string) error
	CountByResultSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// BuyerStore persists the buyer list.
type BuyerStore interface {
	Create(ctx context.Context, b *domain.Buyer) error
	Get(ctx context.Context, id int64) (*domain.Buyer, error)
	List(ctx context.Context, limit, offset int) ([]domain.Buyer, error)
}

// ParcelStore reads parcel rows for call prep.
type ParcelStore interface {
	Get(ctx context.Context, id int64) (*domain.Parcel, error)
}

// OwnerStore reads owner rows for call prep.
type OwnerStore interface {
	Get(ctx context.Context, id int64) (*domain.Owner, error)
}

// PartyStore reads party rows for call prep.
type PartyStore interface {
	Get(ctx context.Context, id int64) (*domain.Party, error)
}

// LeadCreator runs the parcel/party/owner/lead upsert chain for a
// manually submitted lead.
type LeadCreator interface {
	Resolve(ctx context.Context, marketCode string, row resolve.RollRow) (*resolve.Result, error)
}

// LeadScorer scores a freshly created lead.
type LeadScorer interface {
	ScoreLead(ctx context.Context, lead *domain.Lead) (*domain.ScoreBreakdown, error)
}

// Sender dispatches one outreach message synchronously.
type Sender interface {
	Dispatch(ctx context.Context, req outreach.Request) (*domain.OutreachAttempt, error)
}

// BatchSender fans a lead batch across the worker pool and reports the
// pool's lifetime counters.
type BatchSender interface {
	RunBatch(ctx context.Context, tmpl outreach.Request, leads []domain.Lead) (*outreach.Batch, error)
	Stats() outreach.PoolStats
}

// PipelineTrigger starts a nightly run in the background.
type PipelineTrigger interface {
	Start(ctx context.Context, opts pipeline.Options) (string, error)
}

// SheetSource builds, or serves the cached, deal sheet for a lead.
type SheetSource interface {
	Generate(ctx context.Context, leadID int64) (*dealsheet.Sheet, error)
	Reprice(sheet *dealsheet.Sheet, parcel *domain.Parcel, p dealsheet.OfferParams) *dealsheet.Sheet
}

// Blaster matches buyers and sends deal teasers.
type Blaster interface {
	Blast(ctx context.Context, req buyers.Request) (*buyers.Result, error)
}

// InboundProcessor applies one inbound SMS to lead state.
type InboundProcessor interface {
	Process(ctx context.Context, sid, from, body string) (*conversation.Outcome, error)
}

// FactsSource returns cached third-party property facts.
type FactsSource interface {
	Facts(ctx context.Context, parcel *domain.Parcel) (*enrich.PropertyFacts, error)
}

// BudgetSource reports today's remaining SMS budget.
type BudgetSource interface {
	Remaining(ctx context.Context) (int, error)
}

// Pinger checks store connectivity for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps bundles everything the handlers call. Leads, Tasks and Attempts
// are always wired; an optional dep left nil turns its endpoints into
// 503s instead of panics.
type Deps struct {
	DB        Pinger
	Leads     LeadStore
	Timeline  TimelineStore
	Tasks     TaskStore
	Attempts  AttemptStore
	Buyers    BuyerStore
	Parcels   ParcelStore
	Owners    OwnerStore
	Parties   PartyStore
	Resolver  LeadCreator
	Scorer    LeadScorer
	Sender    Sender
	Pool      BatchSender
	Pipeline  PipelineTrigger
	Sheets    SheetSource
	Blaster   Blaster
	Inbound   InboundProcessor
	Facts     FactsSource
	Budget    BudgetSource
	Templates *sms.Engine
}

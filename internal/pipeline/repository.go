package pipeline

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/enrich"
	"github.com/acreage/leadline/internal/ingest"
	"github.com/acreage/leadline/internal/service/alerts"
	"github.com/acreage/leadline/internal/service/followup"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/service/scoring"
)

// Lock serializes nightly runs across the fleet. Satisfied by
// *distlock.StoreLock.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// TaskStore is the task-record access the orchestrator needs.
type TaskStore interface {
	Create(ctx context.Context, taskType string, params any) (*domain.BackgroundTask, error)
	Start(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, result any) error
	Fail(ctx context.Context, id int64, errMsg string, result any) error
	Cancel(ctx context.Context, id int64, result any) error
}

// LeadStore lists the intro candidates for step (d).
type LeadStore interface {
	ListOutreachCandidates(ctx context.Context, marketCode string, minScore, limit int) ([]domain.Lead, error)
}

// Ingestor pulls one county roll. Satisfied by *ingest.Ingestor.
type Ingestor interface {
	IngestRoll(ctx context.Context, marketCode, location string) (*ingest.Summary, error)
}

// Enricher runs one enrichment pass. Satisfied by *enrich.Service.
type Enricher interface {
	Run(ctx context.Context, marketCode string, limit int) (*enrich.Summary, error)
}

// Scorer rescans a market. Satisfied by *scoring.Service.
type Scorer interface {
	ScoreMarket(ctx context.Context, marketCode string, batchSize int) (*scoring.Summary, error)
}

// BatchSender drives the intro batch. Satisfied by *outreach.Pool.
type BatchSender interface {
	RunBatch(ctx context.Context, tmpl outreach.Request, leads []domain.Lead) (*outreach.Batch, error)
}

// FollowupRunner processes due followups. Satisfied by
// *followup.Scheduler.
type FollowupRunner interface {
	RunOnce(ctx context.Context, limit int) (*followup.Summary, error)
}

// HotAlerter pages hot leads for one market. Satisfied by
// *alerts.Service.
type HotAlerter interface {
	RunOnce(ctx context.Context, marketCode string) (alerts.Summary, error)
}

// Budget reports how many sends are left today so the intro batch can
// shrink instead of burning takes on leads the dispatcher will refuse.
type Budget interface {
	Remaining(ctx context.Context) (int, error)
}

// Deps bundles what the orchestrator runs. Lock, Tasks, Leads, Scorer,
// Sender and Followups are required; the rest are optional adapters that
// nil out when their feature flag is off.
type Deps struct {
	Lock      Lock
	Tasks     TaskStore
	Leads     LeadStore
	Ingestor  Ingestor
	Enricher  Enricher
	Scorer    Scorer
	Sender    BatchSender
	Followups FollowupRunner
	Alerter   HotAlerter
	Budget    Budget
}

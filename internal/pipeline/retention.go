package pipeline

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// batchPause spaces delete batches so the sweep never monopolizes the
// table.
const batchPause = 100 * time.Millisecond

// TimelineStore deletes aged timeline events.
type TimelineStore interface {
	DeleteOlderThan(ctx context.Context, days, batch int) (int64, error)
}

// TaskRowStore records sweep passes and deletes finished task rows.
type TaskRowStore interface {
	Create(ctx context.Context, taskType string, params any) (*domain.BackgroundTask, error)
	Complete(ctx context.Context, id int64, result any) error
	DeleteFinishedOlderThan(ctx context.Context, days, batch int) (int64, error)
}

// SheetStore deletes deal sheets past their TTL.
type SheetStore interface {
	DeleteExpired(ctx context.Context, graceDays, batch int) (int64, error)
}

// SweepStores bundles the tables the sweeper trims.
type SweepStores struct {
	Timeline TimelineStore
	Tasks    TaskRowStore
	Sheets   SheetStore
}

// SweepSummary reports one pass. Errors counts tables whose sweep
// stopped early; their partial deletes are still included.
type SweepSummary struct {
	TimelineEvents int64 `json:"timeline_events"`
	Tasks          int64 `json:"tasks"`
	DealSheets     int64 `json:"deal_sheets"`
	Errors         int   `json:"errors,omitempty"`
}

// Sweeper trims derived rows in capped batches. Source rows are never
// touched: losing a parcel or an attempt would rewrite history, losing a
// six-month-old timeline event does not.
type Sweeper struct {
	cfg   config.RetentionConfig
	st    SweepStores
	pause time.Duration
}

// NewSweeper wires the retention sweeper.
func NewSweeper(cfg config.RetentionConfig, st SweepStores) *Sweeper {
	return &Sweeper{cfg: cfg, st: st, pause: batchPause}
}

// SweepOnce drains each table and records the pass as a background task.
// Per-table failures are logged and counted; the pass keeps going.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepSummary, error) {
	sum := &SweepSummary{}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	task, err := s.st.Tasks.Create(ctx, domain.TaskRetentionSweep, nil)
	if err != nil {
		logger.Warn("retention sweep task not recorded", "error", err)
		task = nil
	}

	sum.TimelineEvents = s.drain(ctx, "lead_timeline", sum, func(c context.Context) (int64, error) {
		return s.st.Timeline.DeleteOlderThan(c, s.cfg.TimelineDays, s.cfg.BatchSize)
	})
	sum.Tasks = s.drain(ctx, "background_tasks", sum, func(c context.Context) (int64, error) {
		return s.st.Tasks.DeleteFinishedOlderThan(c, s.cfg.TaskDays, s.cfg.BatchSize)
	})
	sum.DealSheets = s.drain(ctx, "deal_sheets", sum, func(c context.Context) (int64, error) {
		return s.st.Sheets.DeleteExpired(c, s.cfg.SheetGrace, s.cfg.BatchSize)
	})

	if task != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := s.st.Tasks.Complete(fctx, task.ID, sum); err != nil {
			logger.Warn("retention sweep task not completed", "error", err)
		}
		cancel()
	}

	logger.Info("retention sweep complete",
		"timeline_events", sum.TimelineEvents,
		"tasks", sum.Tasks,
		"deal_sheets", sum.DealSheets,
		"errors", sum.Errors,
	)
	return sum, ctx.Err()
}

// drain deletes batch by batch until the table is clean for this
// horizon. An error ends this table's sweep; the next run picks up the
// remainder.
func (s *Sweeper) drain(ctx context.Context, table string, sum *SweepSummary, del func(context.Context) (int64, error)) int64 {
	var total int64
	for {
		if ctx.Err() != nil {
			return total
		}
		n, err := del(ctx)
		if err != nil {
			logger.Error("retention sweep failed", "table", table, "error", err)
			sum.Errors++
			return total
		}
		if n == 0 {
			return total
		}
		total += n
		time.Sleep(s.pause)
	}
}

// Run sweeps immediately and then on the configured interval until ctx
// ends. cmd/worker hosts this.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	logger.Info("retention sweeper running", "interval", interval.String())

	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		logger.Error("retention sweep pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("retention sweep pass failed", "error", err)
			}
		}
	}
}

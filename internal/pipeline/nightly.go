package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/enrich"
	"github.com/acreage/leadline/internal/ingest"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/service/alerts"
	"github.com/acreage/leadline/internal/service/followup"
	"github.com/acreage/leadline/internal/service/outreach"
	"github.com/acreage/leadline/internal/service/scoring"
)

// LockName is the cluster-wide lock every nightly run contends for.
const LockName = "nightly_pipeline"

// ErrLockNotAcquired means another instance is already running tonight's
// pipeline. Not a failure: the work is happening elsewhere.
var ErrLockNotAcquired = errors.New("nightly pipeline already running")

// Options selects what a run covers. Empty Markets means every
// configured market; DryRun simulates the outreach step's sends.
type Options struct {
	Markets []string `json:"markets,omitempty"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// StepError records one isolated step failure on the task result.
type StepError struct {
	Market string `json:"market"`
	Step   string `json:"step"`
	Error  string `json:"error"`
}

// OutreachSummary reports step (d) for one market. Limit is the intro
// batch cap after the budget shrink.
type OutreachSummary struct {
	Limit      int   `json:"limit"`
	Candidates int   `json:"candidates"`
	Sent       int64 `json:"sent"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
}

// MarketResult reports one market's pass. Nil sections were skipped
// (disabled adapter, no roll sources, cancelled run).
type MarketResult struct {
	Market   string           `json:"market"`
	Ingested []ingest.Summary `json:"ingested,omitempty"`
	Enriched *enrich.Summary  `json:"enriched,omitempty"`
	Scored   *scoring.Summary `json:"scored,omitempty"`
	Outreach *OutreachSummary `json:"outreach,omitempty"`
	Alerts   *alerts.Summary  `json:"alerts,omitempty"`
}

// Result is the run outcome persisted on the background task.
type Result struct {
	TaskID     string            `json:"task_id"`
	Status     domain.TaskStatus `json:"status"`
	Markets    []MarketResult    `json:"markets"`
	Followups  *followup.Summary `json:"followups,omitempty"`
	StepErrors []StepError       `json:"step_errors,omitempty"`
}

// Orchestrator owns the nightly sequence. One market at a time, one step
// at a time; the scheduler lock is never held inside a gateway call
// longer than a step timeout allows.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

// NewOrchestrator wires the nightly pipeline.
func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Run executes the pipeline under the cluster lock. ctx carries the
// operator's cancel signal: the step in flight finishes, everything
// after it is skipped and the task ends cancelled. Step failures land in
// Result.StepErrors, not in the returned error; Run errors only when the
// run could not start at all.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	task, err := o.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx)
	return o.execute(ctx, task, opts), nil
}

// Start acquires the lock and the task row synchronously, then runs the
// pipeline in the background. The API trigger uses this: the caller gets
// the task id (or the lock conflict) without waiting out the run.
func (o *Orchestrator) Start(ctx context.Context, opts Options) (string, error) {
	task, err := o.begin(ctx, opts)
	if err != nil {
		return "", err
	}
	bctx := context.WithoutCancel(ctx)
	go func() {
		defer o.release(bctx)
		o.execute(bctx, task, opts)
	}()
	return task.TaskID, nil
}

// begin takes the cluster lock and opens the task record. On a create
// failure the lock is handed back so the next trigger is not shut out
// for a full TTL.
func (o *Orchestrator) begin(ctx context.Context, opts Options) (*domain.BackgroundTask, error) {
	acquired, err := o.deps.Lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: acquire lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockNotAcquired
	}

	task, err := o.deps.Tasks.Create(ctx, domain.TaskNightlyPipeline, opts)
	if err != nil {
		o.release(ctx)
		return nil, fmt.Errorf("pipeline: create task: %w", err)
	}
	if err := o.deps.Tasks.Start(ctx, task.ID); err != nil {
		logger.Warn("pipeline task not marked running", "task_id", task.TaskID, "error", err)
	}
	return task, nil
}

func (o *Orchestrator) release(ctx context.Context) {
	rctx, cancel := o.detached(ctx, 10*time.Second)
	defer cancel()
	if err := o.deps.Lock.Release(rctx); err != nil {
		logger.Error("pipeline lock release failed", "error", err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, task *domain.BackgroundTask, opts Options) *Result {
	res := &Result{TaskID: task.TaskID, Status: domain.TaskRunning}
	logger.Info("nightly pipeline starting", "task_id", task.TaskID, "dry_run", opts.DryRun)
	started := time.Now()

	markets := o.selectMarkets(opts.Markets, res)
	for i := range markets {
		if ctx.Err() != nil {
			break
		}
		res.Markets = append(res.Markets, o.runMarket(ctx, &markets[i], opts, res))

		ttl := time.Duration(o.cfg.Pipeline.LockTTLMinutes) * time.Minute
		if err := o.deps.Lock.Extend(ctx, ttl); err != nil && ctx.Err() == nil {
			logger.Warn("pipeline lock extend failed", "error", err)
		}
	}

	// Followups are due by clock, not by market, so one pass covers all
	// markets at once.
	if ctx.Err() == nil {
		sctx, cancel := o.stepContext(ctx)
		sum, err := o.deps.Followups.RunOnce(sctx, 0)
		cancel()
		res.Followups = sum
		if err != nil && !errors.Is(err, context.Canceled) {
			o.stepFailed(res, "all", "followups", err)
		}
	}

	o.finish(ctx, task.ID, res)
	logger.Info("nightly pipeline finished",
		"task_id", task.TaskID,
		"status", string(res.Status),
		"markets", len(res.Markets),
		"step_errors", len(res.StepErrors),
		"took", time.Since(started).Round(time.Second).String(),
	)
	return res
}

// runMarket walks steps (a) through (d) plus alerts for one market. A
// failed step is recorded and the next one still runs; a cancel stops
// before the next step starts.
func (o *Orchestrator) runMarket(ctx context.Context, m *config.MarketConfig, opts Options, res *Result) MarketResult {
	mr := MarketResult{Market: m.Code}
	logger.Info("pipeline market starting", "market", m.Code)

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"ingest", func(c context.Context) error { return o.ingestStep(c, m, &mr) }},
		{"enrich", func(c context.Context) error { return o.enrichStep(c, m, &mr) }},
		{"score", func(c context.Context) error { return o.scoreStep(c, m, &mr) }},
		{"outreach", func(c context.Context) error { return o.outreachStep(c, m, opts, &mr) }},
		{"alerts", func(c context.Context) error { return o.alertStep(c, m, &mr) }},
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			return mr
		}
		sctx, cancel := o.stepContext(ctx)
		err := step.run(sctx)
		cancel()
		if err != nil {
			o.stepFailed(res, m.Code, step.name, err)
		}
	}
	return mr
}

func (o *Orchestrator) ingestStep(ctx context.Context, m *config.MarketConfig, mr *MarketResult) error {
	if o.deps.Ingestor == nil || len(m.RollSources) == 0 {
		return nil
	}
	var errs []error
	for _, src := range m.RollSources {
		sum, err := o.deps.Ingestor.IngestRoll(ctx, m.Code, src)
		if sum != nil {
			mr.Ingested = append(mr.Ingested, *sum)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) enrichStep(ctx context.Context, m *config.MarketConfig, mr *MarketResult) error {
	if o.deps.Enricher == nil {
		return nil
	}
	sum, err := o.deps.Enricher.Run(ctx, m.Code, o.cfg.Pipeline.EnrichLimit)
	mr.Enriched = sum
	return err
}

func (o *Orchestrator) scoreStep(ctx context.Context, m *config.MarketConfig, mr *MarketResult) error {
	sum, err := o.deps.Scorer.ScoreMarket(ctx, m.Code, 0)
	mr.Scored = sum
	return err
}

// outreachStep sends the intro batch: NEW leads above the market's score
// floor, best first, capped by the batch size and today's remaining
// budget. The shrink is advisory; the dispatcher's own budget take is
// what enforces the cap.
func (o *Orchestrator) outreachStep(ctx context.Context, m *config.MarketConfig, opts Options, mr *MarketResult) error {
	limit := o.cfg.Outreach.BatchSize
	if o.deps.Budget != nil {
		left, err := o.deps.Budget.Remaining(ctx)
		if err != nil {
			logger.Warn("budget remaining unavailable, batch unshrunk", "market", m.Code, "error", err)
		} else if left < limit {
			limit = left
		}
	}

	sum := &OutreachSummary{Limit: limit}
	mr.Outreach = sum
	if limit <= 0 {
		logger.Info("intro batch skipped, daily sms budget exhausted", "market", m.Code)
		return nil
	}

	leads, err := o.deps.Leads.ListOutreachCandidates(ctx, m.Code, m.MinMotivationScore, limit)
	if err != nil {
		return fmt.Errorf("list intro candidates: %w", err)
	}
	sum.Candidates = len(leads)
	if len(leads) == 0 {
		return nil
	}

	batch, err := o.deps.Sender.RunBatch(ctx, outreach.Request{
		Context: domain.ContextIntro,
		DryRun:  opts.DryRun,
	}, leads)
	if batch != nil {
		sum.Sent = batch.Sent.Load()
		sum.Skipped = batch.Skipped.Load()
		sum.Failed = batch.Failed.Load()
	}
	return err
}

func (o *Orchestrator) alertStep(ctx context.Context, m *config.MarketConfig, mr *MarketResult) error {
	if o.deps.Alerter == nil {
		return nil
	}
	sum, err := o.deps.Alerter.RunOnce(ctx, m.Code)
	mr.Alerts = &sum
	return err
}

// selectMarkets resolves the requested market codes against the config.
// Unknown codes become step errors so a typo in a manual trigger is
// visible on the task record instead of silently running nothing.
func (o *Orchestrator) selectMarkets(codes []string, res *Result) []config.MarketConfig {
	if len(codes) == 0 {
		return o.cfg.Markets
	}
	out := make([]config.MarketConfig, 0, len(codes))
	for _, code := range codes {
		if m := o.cfg.Market(code); m != nil {
			out = append(out, *m)
			continue
		}
		o.stepFailed(res, code, "select", fmt.Errorf("unknown market %q", code))
	}
	return out
}

func (o *Orchestrator) stepFailed(res *Result, market, step string, err error) {
	res.StepErrors = append(res.StepErrors, StepError{Market: market, Step: step, Error: err.Error()})
	logger.Error("pipeline step failed", "market", market, "step", step, "error", err)
}

// finish settles the task record. A detached context is used so a
// cancelled run can still persist its final status.
func (o *Orchestrator) finish(ctx context.Context, taskID int64, res *Result) {
	fctx, cancel := o.detached(ctx, 15*time.Second)
	defer cancel()

	switch {
	case ctx.Err() != nil:
		res.Status = domain.TaskCancelled
		if err := o.deps.Tasks.Cancel(fctx, taskID, res); err != nil {
			logger.Error("pipeline task not marked cancelled", "error", err)
		}
	case len(res.StepErrors) > 0:
		res.Status = domain.TaskFailed
		msg := fmt.Sprintf("%d step(s) failed, first: %s/%s: %s",
			len(res.StepErrors), res.StepErrors[0].Market, res.StepErrors[0].Step, res.StepErrors[0].Error)
		if err := o.deps.Tasks.Fail(fctx, taskID, msg, res); err != nil {
			logger.Error("pipeline task not marked failed", "error", err)
		}
	default:
		res.Status = domain.TaskCompleted
		if err := o.deps.Tasks.Complete(fctx, taskID, res); err != nil {
			logger.Error("pipeline task not marked completed", "error", err)
		}
	}
}

// stepContext detaches a step from the run's cancel signal and bounds it
// with the step timeout. Cancelling the run lets the in-flight step
// finish; the timeout is what stops a wedged one.
func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(o.cfg.Pipeline.StepTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (o *Orchestrator) detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

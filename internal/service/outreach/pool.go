package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

const (
	defaultPoolWorkers = 4
	defaultQueueSize   = 64
)

// Pool fans dispatcher calls out over a fixed worker set. Each worker
// processes one job at a time so a lead's send lock and idempotency
// reservation happen back to back.
type Pool struct {
	dispatcher *Dispatcher
	workers    int
	queue      chan poolJob
	wg         sync.WaitGroup

	processed atomic.Int64
	sent      atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

type poolJob struct {
	req   Request
	batch *Batch
}

// Batch tracks one RunBatch call: per-batch counters plus a cancel flag
// workers honor for jobs still queued when the caller gives up.
type Batch struct {
	wg       sync.WaitGroup
	canceled atomic.Bool

	Sent    atomic.Int64
	Failed  atomic.Int64
	Skipped atomic.Int64
}

// PoolStats is a point-in-time snapshot of the lifetime counters.
// Dry runs count as sent: they are the success path of that mode.
type PoolStats struct {
	Processed int64 `json:"processed"`
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// NewPool sizes the worker set and queue, defaulting zero values.
func NewPool(d *Dispatcher, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = defaultPoolWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		dispatcher: d,
		workers:    workers,
		queue:      make(chan poolJob, queueSize),
	}
}

// Start launches the workers. ctx bounds every dispatch the pool makes.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logger.Info("outreach pool started", "workers", p.workers, "queue", cap(p.queue))
}

// Stop closes the queue and waits for in-flight jobs to drain. Callers
// must stop submitting first.
func (p *Pool) Stop() {
	close(p.queue)
	p.wg.Wait()
	logger.Info("outreach pool stopped",
		"processed", p.processed.Load(), "sent", p.sent.Load(),
		"failed", p.failed.Load(), "skipped", p.skipped.Load())
}

// Submit queues one ad-hoc request. Blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	select {
	case p.queue <- poolJob{req: req}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunBatch queues one request per lead, shaped like tmpl with the lead id
// filled in, and waits for all of them. On ctx cancel the still-queued
// remainder is skipped, not sent.
func (p *Pool) RunBatch(ctx context.Context, tmpl Request, leads []domain.Lead) (*Batch, error) {
	b := &Batch{}
	for i := range leads {
		req := tmpl
		req.LeadID = leads[i].ID
		b.wg.Add(1)
		select {
		case p.queue <- poolJob{req: req, batch: b}:
		case <-ctx.Done():
			b.wg.Done()
			b.canceled.Store(true)
			return b, ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return b, nil
	case <-ctx.Done():
		b.canceled.Store(true)
		<-done
		return b, ctx.Err()
	}
}

// Stats snapshots the lifetime counters for /api/stats.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed: p.processed.Load(),
		Sent:      p.sent.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	name := fmt.Sprintf("outreach-worker-%d", id)
	for job := range p.queue {
		if job.batch != nil && job.batch.canceled.Load() {
			p.processed.Add(1)
			p.skipped.Add(1)
			job.batch.Skipped.Add(1)
			job.batch.wg.Done()
			continue
		}
		p.process(ctx, name, job)
	}
}

func (p *Pool) process(ctx context.Context, name string, job poolJob) {
	if job.batch != nil {
		defer job.batch.wg.Done()
	}
	p.processed.Add(1)

	attempt, err := p.dispatcher.Dispatch(ctx, job.req)
	switch {
	case IsSkip(err):
		p.skipped.Add(1)
		if job.batch != nil {
			job.batch.Skipped.Add(1)
		}
	case err != nil:
		p.failed.Add(1)
		if job.batch != nil {
			job.batch.Failed.Add(1)
		}
		logger.Warn("outreach job failed", "worker", name, "lead_id", job.req.LeadID, "error", err)
	case attempt != nil && attempt.Status == domain.AttemptFailed:
		// Soft gateway failure, already finalized on the attempt row.
		p.failed.Add(1)
		if job.batch != nil {
			job.batch.Failed.Add(1)
		}
	default:
		p.sent.Add(1)
		if job.batch != nil {
			job.batch.Sent.Add(1)
		}
	}
}

// IsSkip reports whether a dispatch outcome was a deliberate refusal
// rather than a failure: gate skips, lock contention, duplicate sends.
func IsSkip(err error) bool {
	if _, ok := AsSkip(err); ok {
		return true
	}
	return errors.Is(err, ErrLockContended) || errors.Is(err, ErrDuplicateSend)
}

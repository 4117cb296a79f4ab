package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/pkg/logger"
)

// LockService scopes work under a lead's row-backed send lock. The lock
// is advisory with a TTL so a crashed holder cannot wedge a lead, and
// re-entrant per instance so retries on the same process succeed.
type LockService struct {
	leads    LeadStore
	instance string
	ttl      time.Duration
}

// NewLockService builds a lock service. instance identifies this process
// in send_locked_by; ttl bounds how long a dead holder blocks the lead.
func NewLockService(leads LeadStore, instance string, ttl time.Duration) *LockService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &LockService{leads: leads, instance: instance, ttl: ttl}
}

// Instance returns the holder id this service locks under.
func (s *LockService) Instance() string { return s.instance }

// WithLock acquires the lead's send lock, runs fn, and releases on every
// exit path. Contention returns ErrLockContended without running fn.
func (s *LockService) WithLock(ctx context.Context, leadID int64, fn func(ctx context.Context) error) error {
	ok, err := s.leads.AcquireSendLock(ctx, leadID, s.instance, s.ttl)
	if err != nil {
		return fmt.Errorf("acquire send lock for lead %d: %w", leadID, err)
	}
	if !ok {
		return ErrLockContended
	}
	defer func() {
		// Release on a fresh context: the work's context may already be
		// canceled and the lock must not outlive the work by the TTL.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.leads.ReleaseSendLock(releaseCtx, leadID, s.instance); err != nil {
			logger.Warn("send lock release failed", "lead_id", leadID, "error", err)
		}
	}()

	return fn(ctx)
}

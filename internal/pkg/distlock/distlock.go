// Package distlock provides a cluster-wide named lock backed by the
// database. At most one holder owns a name at a time; expired locks are
// stolen on the next acquire, so a crashed holder never wedges the fleet.
//
// The lock row is the source of truth. Re-acquiring as the current holder
// extends the expiry (re-entrant); releasing as a non-holder is a no-op.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// StoreLock implements DistLock against the scheduler_locks table.
type StoreLock struct {
	db     *sql.DB
	name   string
	holder string
	ttl    time.Duration
}

// NewStoreLock creates a named lock. holder identifies this process
// instance; the same holder may re-acquire to extend the expiry.
func NewStoreLock(db *sql.DB, name, holder string, ttl time.Duration) *StoreLock {
	return &StoreLock{db: db, name: name, holder: holder, ttl: ttl}
}

// Acquire inserts the lock row, or steals it when expired, or extends it
// when already held by this instance. One atomic statement: the WHERE
// clause on the conflict update is what enforces mutual exclusion.
func (l *StoreLock) Acquire(ctx context.Context) (bool, error) {
	var name string
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO scheduler_locks (lock_name, locked_by, locked_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + make_interval(secs => $3))
		ON CONFLICT (lock_name) DO UPDATE
		SET locked_by = EXCLUDED.locked_by,
		    locked_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE scheduler_locks.expires_at <= NOW()
		   OR scheduler_locks.locked_by = EXCLUDED.locked_by
		RETURNING lock_name
	`, l.name, l.holder, l.ttl.Seconds()).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.name, err)
	}
	return true, nil
}

// Extend pushes the expiry forward without changing the holder.
func (l *StoreLock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE scheduler_locks
		SET expires_at = NOW() + make_interval(secs => $3)
		WHERE lock_name = $1 AND locked_by = $2
	`, l.name, l.holder, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("extend lock %s: no longer held by %s", l.name, l.holder)
	}
	return nil
}

// Release deletes the lock row only if this instance still holds it.
func (l *StoreLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM scheduler_locks WHERE lock_name = $1 AND locked_by = $2`,
		l.name, l.holder)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	return nil
}

// Holder returns the instance id this lock acquires as.
func (l *StoreLock) Holder() string { return l.holder }

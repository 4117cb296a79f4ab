package domain

import (
	"encoding/json"
	"time"
)

// TaskStatus enumerates the lifecycle of a background task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Background task types.
const (
	TaskNightlyPipeline = "nightly_pipeline"
	TaskIngest          = "ingest"
	TaskOutreachBatch   = "outreach_batch"
	TaskBuyerBlast      = "buyer_blast"
	TaskBulletinNotice  = "bulletin_notice"
	TaskRetentionSweep  = "retention_sweep"
)

// BackgroundTask records one background job: what ran, with which params,
// and how it ended. TaskID is the external handle (UUID).
type BackgroundTask struct {
	ID           int64           `json:"id" db:"id"`
	TaskID       string          `json:"task_id" db:"task_id"`
	TaskType     string          `json:"task_type" db:"task_type"`
	Status       TaskStatus      `json:"status" db:"status"`
	Params       json.RawMessage `json:"params,omitempty" db:"params"`
	Result       json.RawMessage `json:"result,omitempty" db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the task reached a final status.
func (t *BackgroundTask) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskCancelled
}

// SchedulerLock is one named cluster-wide lock row. At most one unexpired
// row exists per name; holders extend expiry by re-acquiring.
type SchedulerLock struct {
	ID        int64     `json:"id" db:"id"`
	LockName  string    `json:"lock_name" db:"lock_name"`
	LockedBy  string    `json:"locked_by" db:"locked_by"`
	LockedAt  time.Time `json:"locked_at" db:"locked_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the lock has lapsed as of now.
func (l *SchedulerLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

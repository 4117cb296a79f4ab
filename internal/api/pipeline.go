package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acreage/leadline/internal/pipeline"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/repository/postgres"
)

// TriggerNightly answers POST /api/pipeline/nightly: kick the nightly
// run off-schedule. The run executes in the background; only the lock
// and task row are claimed before responding, so a second trigger while
// one is live gets a clean 409.
func (h *Handlers) TriggerNightly(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pipeline == nil {
		unavailable(w, "pipeline")
		return
	}
	var opts pipeline.Options
	if r.ContentLength != 0 && !httputil.Decode(w, r, &opts) {
		return
	}

	taskID, err := h.deps.Pipeline.Start(context.WithoutCancel(r.Context()), opts)
	if errors.Is(err, pipeline.ErrLockNotAcquired) {
		httputil.Conflict(w, "PIPELINE_RUNNING", "nightly pipeline already running")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"task_id": taskID})
}

// GetTask answers GET /api/tasks/{taskID} for polling background work.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		httputil.BadRequest(w, "missing task id")
		return
	}
	task, err := h.deps.Tasks.GetByTaskID(r.Context(), taskID)
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, "task not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, task)
}

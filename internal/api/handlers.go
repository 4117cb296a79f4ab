package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/go-chi/chi/v5"
)

// Handlers carries the route implementations over the wired deps.
type Handlers struct {
	cfg     *config.Config
	deps    Deps
	started time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(cfg *config.Config, deps Deps) *Handlers {
	return &Handlers{cfg: cfg, deps: deps, started: time.Now()}
}

// Health reports process liveness and store reachability. A dead
// database degrades the answer to 503 so the balancer rotates us out.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"dry_run":        h.cfg.Outreach.DryRun,
	}
	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.DB.PingContext(ctx); err != nil {
			out["status"] = "degraded"
			out["database"] = "unreachable"
			httputil.JSON(w, http.StatusServiceUnavailable, out)
			return
		}
		out["database"] = "ok"
	}
	httputil.OK(w, out)
}

// ListResponse wraps list payloads with the total match count so
// clients can page with limit/offset.
type ListResponse struct {
	Data   any `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// limitOffset parses the paging query params, clamped to sane bounds.
func limitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// idParam parses a positive integer id from the route. Writes the 400
// itself; callers just return on false.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

// unavailable answers for an endpoint whose optional dependency was not
// wired in this process.
func unavailable(w http.ResponseWriter, what string) {
	httputil.ErrorCode(w, http.StatusServiceUnavailable, "NOT_WIRED", what+" is not enabled on this instance")
}

// writeStoreError maps a repository read error: row misses become 404s,
// anything else is a 500.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, postgres.ErrNotFound) {
		httputil.NotFound(w, notFoundMsg)
		return
	}
	httputil.InternalError(w, err)
}

package api

import (
	"crypto/hmac"
	"net/http"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes assembles the mux. /health and the webhooks stay outside the
// API-key group: the former is for load balancers, the latter carry
// Twilio signatures instead.
func Routes(cfg *config.Config, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/webhooks/twilio", func(r chi.Router) {
		r.Post("/inbound", h.TwilioInbound)
		r.Post("/status", h.TwilioStatus)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.Auth.APIKey))

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", h.ListLeads)
			r.Post("/", h.CreateLead)
			r.Get("/{id}", h.GetLead)
			r.Patch("/{id}", h.UpdateLeadStatus)
			r.Get("/{id}/timeline", h.LeadTimeline)
		})

		r.Route("/outreach", func(r chi.Router) {
			r.Post("/batch", h.OutreachBatch)
			r.Post("/lead/{id}", h.OutreachLead)
		})

		r.Post("/pipeline/nightly", h.TriggerNightly)
		r.Get("/tasks/{taskID}", h.GetTask)

		r.Route("/calls/{id}", func(r chi.Router) {
			r.Get("/prep-pack", h.CallPrepPack)
			r.Get("/offer", h.CallOffer)
			r.Get("/script", h.CallScript)
		})

		r.Route("/buyers", func(r chi.Router) {
			r.Post("/", h.CreateBuyer)
			r.Get("/", h.ListBuyers)
			r.Get("/{id}", h.GetBuyer)
		})
		r.Post("/blasts/{leadID}", h.BlastLead)

		r.Get("/stats", h.Stats)
	})

	return r
}

// apiKeyAuth guards the /api group with a constant-time X-API-Key
// check. An empty configured key disables the check (local development
// only).
func apiKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" && !hmac.Equal([]byte(r.Header.Get("X-API-Key")), []byte(key)) {
				httputil.ErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package transporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/trackd/internal/config"
)

// NewRouter wires the public tracking endpoint and the authenticated API.
func NewRouter(s *Server, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The pixel posts cross-origin from customer sites.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Use(RateLimitByIP(cfg.RateLimit, cfg.RateBurst))
		r.Use(BodyLimit(cfg.MaxBodyBytes))
		r.Post("/track", s.HandleTrack)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(s.store))
		r.Use(BodyLimit(1 << 20))

		r.Get("/site", s.HandleGetSite)
		r.Get("/stats", s.HandleStats)
		r.Get("/visitors", s.HandleListVisitors)
		r.Get("/visitors/{id}", s.HandleGetVisitor)
		r.Get("/contacts", s.HandleListContacts)
		r.Get("/contacts/{id}", s.HandleGetContact)
		r.Delete("/contacts/{id}", s.HandleDeleteContact)
		r.Get("/events", s.HandleListEvents)
		r.Get("/goals", s.HandleListGoals)
		r.Post("/goals", s.HandleCreateGoal)
		r.Delete("/goals/{id}", s.HandleDeleteGoal)
		r.Post("/enrichment", s.HandleUpsertEnrichment)
	})

	return r
}

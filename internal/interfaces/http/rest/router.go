// Package rest wires the engine's HTTP surface: the chi router, its
// middleware stack, and the audit and round handlers.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arbiter-backend/internal/application/services"
	"arbiter-backend/internal/infrastructure/observability"
	"arbiter-backend/internal/interfaces/http/rest/handlers"
	"arbiter-backend/pkg/api"
)

// Config carries the router's operational knobs.
type Config struct {
	// CORSOrigins lists the allowed cross-origin callers. Empty allows
	// any origin.
	CORSOrigins []string

	// RequestTimeout cancels handler contexts that run too long. Zero
	// disables the timeout.
	RequestTimeout time.Duration
}

// Router creates and configures the HTTP router.
type Router struct {
	audits      *services.AuditService
	settlements *services.SettlementService
	metrics     *observability.Collector
	logger      *zap.Logger
	cfg         Config
}

// NewRouter creates a new router instance.
func NewRouter(
	audits *services.AuditService,
	settlements *services.SettlementService,
	metrics *observability.Collector,
	logger *zap.Logger,
	cfg Config,
) *Router {
	return &Router{
		audits:      audits,
		settlements: settlements,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))
	router.Use(httpMetrics(rt.metrics))
	if rt.cfg.RequestTimeout > 0 {
		router.Use(chimiddleware.Timeout(rt.cfg.RequestTimeout))
	}

	origins := rt.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Operational endpoints stay outside the versioned API.
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.metrics.Registry(), promhttp.HandlerOpts{}))
	router.Get("/api/docs", api.SwaggerHandler())
	router.Get("/api/docs/ui", api.SwaggerUIHandler())

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(circuitBreaker("api-routes", rt.logger))

		auditHandler := handlers.NewAuditHandler(rt.audits, rt.logger)
		roundHandler := handlers.NewRoundHandler(rt.settlements, rt.logger)

		r.Route("/audits", func(r chi.Router) {
			r.Post("/", auditHandler.RunAudit)
			r.Get("/{auditID}", auditHandler.GetAudit)
		})

		r.Get("/threads/{threadID}/audits", auditHandler.ListThreadAudits)

		r.Route("/rounds", func(r chi.Router) {
			r.Post("/", roundHandler.OpenRound)
			r.Get("/{roundID}", roundHandler.GetRound)
			r.Post("/{roundID}/commitments", roundHandler.Commit)
			r.Post("/{roundID}/reveals", roundHandler.Reveal)
			r.Post("/{roundID}/settlement", roundHandler.Settle)
		})
	})

	return router
}

// healthCheck handles liveness probes.
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	api.Success(w, http.StatusOK, api.HealthResponse{
		Status:  "healthy",
		Service: "arbiter-backend",
		Time:    time.Now().UTC(),
	})
}

// readinessCheck handles readiness probes. The engine holds no warm
// state, so ready tracks liveness.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	api.Success(w, http.StatusOK, api.HealthResponse{
		Status:  "ready",
		Service: "arbiter-backend",
		Time:    time.Now().UTC(),
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/convergelabs/beliefd/internal/api/handlers"
	mw "github.com/convergelabs/beliefd/internal/api/middleware"
	"github.com/convergelabs/beliefd/internal/config"
	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/metrics"
	"github.com/convergelabs/beliefd/internal/service"
	"github.com/convergelabs/beliefd/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and shared dependencies for lifecycle management.
type App struct {
	Router    *chi.Mux
	Reconcile *service.ReconcileService
	Profile   *service.ProfileService
	startTime time.Time
}

// Options carries optional overrides for NewApp.
type Options struct {
	Taxonomy  domain.TaxonomyLookup
	Selection *service.SelectionConfig
	Registry  *prometheus.Registry
}

func NewApp(kv store.KV, logger *zap.Logger, opts Options) *App {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry)

	selection := service.DefaultSelectionConfig()
	selection.MinConfidence = config.MinConfidence()
	selection.MaxAlternativeDelta = config.MaxAlternativeDelta()
	selection.GranularityBonus = config.GranularityBonus()
	selection.GranularityThreshold = config.GranularityThreshold()
	if opts.Selection != nil {
		selection = *opts.Selection
	}

	// Stores
	memoryStore := store.NewMemoryStore(kv, logger)

	// Services
	reconcileSvc := service.NewReconcileService(memoryStore, memoryStore, memoryStore, opts.Taxonomy, m, logger)
	selector := service.NewSelector(selection, logger)
	profileSvc := service.NewProfileService(memoryStore, selector, logger)

	// Handlers
	observationHandler := handlers.NewObservationHandler(reconcileSvc)
	beliefHandler := handlers.NewBeliefHandler(memoryStore, reconcileSvc)
	profileHandler := handlers.NewProfileHandler(profileSvc, memoryStore)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Reconcile: reconcileSvc,
		Profile:   profileSvc,
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)                                                 // Generate/extract request ID first
	r.Use(middleware.RealIP)                                            // Extract real IP
	r.Use(mw.Metrics(m))                                                // Collect metrics
	r.Use(mw.Logging(logger))                                           // Log all requests
	r.Use(middleware.Recoverer)                                         // Recover from panics
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst())) // Rate limiting

	r.Get("/health", healthHandler(kv))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Post("/observations", observationHandler.Ingest)

		r.Route("/beliefs", func(r chi.Router) {
			r.Get("/", beliefHandler.List)
			r.Route("/{beliefID}", func(r chi.Router) {
				r.Get("/", beliefHandler.GetByID)
				r.Delete("/", beliefHandler.Delete)
				r.Post("/resolve", beliefHandler.Resolve)
			})
		})

		r.Get("/conflicts", beliefHandler.Conflicts)
		r.Get("/stale", profileHandler.Stale)
		r.Get("/profile", profileHandler.Get)
		r.Get("/episodes", profileHandler.Episodes)
		r.Get("/processed", profileHandler.Processed)
	})

	return app
}

func healthHandler(kv store.KV) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := kv.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Ensure the store satisfies every service-facing interface at compile time.
var (
	_ domain.BeliefStore      = (*store.MemoryStore)(nil)
	_ domain.EpisodeStore     = (*store.MemoryStore)(nil)
	_ domain.ProcessedTracker = (*store.MemoryStore)(nil)
)

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sergeJAVA/contractor-service/api/controllers"
	"github.com/sergeJAVA/contractor-service/api/middleware"
	"github.com/sergeJAVA/contractor-service/internal/contractors"
	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
	"github.com/sergeJAVA/contractor-service/pkg/outbox"
)

// AdminDeps is what the operator router needs from the relay process.
type AdminDeps struct {
	Outbox   *outbox.Repository
	Checks   map[string]controllers.Pinger
	Gatherer prometheus.Gatherer
}

// NewAdminRouter serves probes, metrics and the outbox operator endpoints.
func NewAdminRouter(cfg *config.Config, logg *logger.Logger, deps AdminDeps) http.Handler {
	r := newBaseRouter(cfg, logg, deps.Checks, deps.Gatherer)

	r.Route("/api/admin/v1/outbox", func(r chi.Router) {
		r.Get("/", controllers.AdminListOutbox(deps.Outbox, logg))
		r.Post("/replay", controllers.AdminReplayOutboxBatch(deps.Outbox, logg))
		r.Get("/{messageId}", controllers.AdminGetOutbox(deps.Outbox, logg))
		r.Post("/{messageId}/replay", controllers.AdminReplayOutbox(deps.Outbox, logg))
	})

	return r
}

// APIDeps is what the contractor API process serves.
type APIDeps struct {
	Contractors *contractors.Service
	Checks      map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
}

func NewAPIRouter(cfg *config.Config, logg *logger.Logger, deps APIDeps) http.Handler {
	r := newBaseRouter(cfg, logg, deps.Checks, deps.Gatherer)

	r.Route("/contractor", func(r chi.Router) {
		r.Use(middleware.UserID(logg))
		r.Get("/{id}", controllers.ContractorGet(deps.Contractors, logg))
		r.Put("/save", controllers.ContractorSave(deps.Contractors, logg))
		r.Delete("/delete/{id}", controllers.ContractorDelete(deps.Contractors, logg))
	})

	return r
}

// NewProbeRouter serves only probes and metrics, for the worker processes.
func NewProbeRouter(cfg *config.Config, logg *logger.Logger, checks map[string]controllers.Pinger, gatherer prometheus.Gatherer) http.Handler {
	return newBaseRouter(cfg, logg, checks, gatherer)
}

func newBaseRouter(cfg *config.Config, logg *logger.Logger, checks map[string]controllers.Pinger, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

package api

import (
	"net/http"
	"workshop_server/api/admin"
	"workshop_server/api/debug"
	"workshop_server/api/health"
	"workshop_server/api/images"
	"workshop_server/api/middleware"
	"workshop_server/services"
	"workshop_server/structs"

	"github.com/MonkyMars/gecho"
	"github.com/go-chi/chi/v5"
	chiware "github.com/go-chi/chi/v5/middleware"
)

// App wires every route. cdn serves stored image objects under /cdn and may
// be nil when a real CDN fronts the bucket.
func App(cfg *structs.Config, logger *gecho.Logger, mwLogger *gecho.Logger, sm *services.ServiceManager, cdn http.Handler) chi.Router {
	r := chi.NewRouter()
	production := cfg.Server.Environment == "production"

	// Initialize middleware
	mw := middleware.NewMiddleware(cfg, mwLogger, sm.CacheService)

	// Core infra
	r.Use(chiware.RequestID)
	r.Use(chiware.RealIP)
	r.Use(chiware.Recoverer)

	// Limits & security
	r.Use(mw.BodyLimit(cfg.Server.MaxBodyBytes))
	r.Use(mw.SecurityHeaders())

	// Observability
	r.Use(mw.SetupLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware)

	// CORS (must be before auth / csrf)
	r.Use(mw.SetupCORS().Handler)
	r.Use(mw.RateLimitMiddleware())

	NewRouterManager(
		images.NewImageRoutesManager(logger, sm.ImageService, cdn),
		health.NewHealthRoutesManager(sm.HealthService),
		admin.NewAdminRoutesManager(logger, sm.SessionService, mw, production),
		debug.NewDebugRoutesManager(sm.CacheService, sm.SessionService, production),
	).RegisterRoutes(r)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		gecho.Success(w,
			gecho.WithMessage("Welcome to the "+cfg.Server.AppName+" API"),
			gecho.Send(),
		)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		gecho.NotFound(w,
			gecho.Send(),
		)
	})

	return r
}

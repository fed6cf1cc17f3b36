package debug

import (
	"workshop_server/services"

	"github.com/go-chi/chi/v5"
)

type DebugRoutesManager struct {
	cacheService   *services.CacheService
	sessionService *services.EditSessionService
	production     bool
}

func NewDebugRoutesManager(cacheService *services.CacheService, sessionService *services.EditSessionService, production bool) *DebugRoutesManager {
	return &DebugRoutesManager{
		cacheService:   cacheService,
		sessionService: sessionService,
		production:     production,
	}
}

func (drm *DebugRoutesManager) RegisterRoutes(r chi.Router) {
	// Debug routes - only in non-production environments
	if !drm.production {
		r.Route("/debug", func(r chi.Router) {
			r.Post("/cache/clear", drm.ClearCache)
			r.Post("/sessions/prune", drm.PruneSessions)
		})
	}
}

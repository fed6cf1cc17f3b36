package api

import (
	"workshop_server/api/admin"
	"workshop_server/api/debug"
	"workshop_server/api/health"
	"workshop_server/api/images"

	"github.com/go-chi/chi/v5"
)

type routerManager struct {
	imageRoutes  *images.ImageRoutesManager
	healthRoutes *health.HealthRoutesManager
	adminRoutes  *admin.AdminRoutesManager
	debugRoutes  *debug.DebugRoutesManager
}

func NewRouterManager(
	imageRoutes *images.ImageRoutesManager,
	healthRoutes *health.HealthRoutesManager,
	adminRoutes *admin.AdminRoutesManager,
	debugRoutes *debug.DebugRoutesManager,
) *routerManager {
	return &routerManager{
		imageRoutes:  imageRoutes,
		healthRoutes: healthRoutes,
		adminRoutes:  adminRoutes,
		debugRoutes:  debugRoutes,
	}
}

func (rm *routerManager) RegisterRoutes(r chi.Router) {
	rm.healthRoutes.RegisterRoutes(r)
	rm.adminRoutes.RegisterRoutes(r)
	rm.debugRoutes.RegisterRoutes(r)
	rm.imageRoutes.RegisterRoutes(r)
}

package admin

import (
	"workshop_server/api/middleware"
	"workshop_server/services"

	"github.com/MonkyMars/gecho"
	"github.com/go-chi/chi/v5"
)

type AdminRoutesManager struct {
	logger         *gecho.Logger
	sessionService *services.EditSessionService
	mw             *middleware.Middleware
	secureCookies  bool
}

func NewAdminRoutesManager(
	logger *gecho.Logger,
	sessionService *services.EditSessionService,
	mw *middleware.Middleware,
	secureCookies bool,
) *AdminRoutesManager {
	return &AdminRoutesManager{
		logger:         logger,
		sessionService: sessionService,
		mw:             mw,
		secureCookies:  secureCookies,
	}
}

func (ar *AdminRoutesManager) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(ar.mw.AdminAuthMiddleware)
		r.Get("/csrf", ar.HandleCSRF)
		r.Get("/image-sessions/{sessionID}", ar.ViewSession)
		r.Get("/image-sessions/{sessionID}/images/{imageID}/preview", ar.PreviewImage)

		// Protected routes behind CSRF
		r.Group(func(r chi.Router) {
			r.Use(ar.mw.CSRFMiddleware())
			r.Post("/{kind}/{parentID}/image-sessions", ar.OpenSession)
			r.Delete("/image-sessions/{sessionID}", ar.DiscardSession)

			r.Post("/image-sessions/{sessionID}/files", ar.AddFiles)
			r.Delete("/image-sessions/{sessionID}/images/{imageID}", ar.RemoveImage)
			r.Put("/image-sessions/{sessionID}/images/{imageID}/position", ar.ReorderImage)
			r.Put("/image-sessions/{sessionID}/images/{imageID}/primary", ar.SetPrimaryImage)

			r.Post("/image-sessions/{sessionID}/commit", ar.CommitSession)
		})
	})
}

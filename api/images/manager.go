package images

import (
	"net/http"
	"workshop_server/services"

	"github.com/MonkyMars/gecho"
	"github.com/go-chi/chi/v5"
)

type ImageRoutesManager struct {
	logger       *gecho.Logger
	imageService *services.ImageService
	cdn          http.Handler
}

// NewImageRoutesManager serves the public image lists; cdn, when set, serves
// the stored objects under /cdn
func NewImageRoutesManager(logger *gecho.Logger, imageService *services.ImageService, cdn http.Handler) *ImageRoutesManager {
	return &ImageRoutesManager{
		logger:       logger,
		imageService: imageService,
		cdn:          cdn,
	}
}

func (irm *ImageRoutesManager) RegisterRoutes(r chi.Router) {
	r.Get("/{kind}/{parentID}/images", irm.ListImages)

	if irm.cdn != nil {
		r.Handle("/cdn/*", http.StripPrefix("/cdn", irm.cdn))
	}
}

package services

import (
	"workshop_server/database"
	"workshop_server/storage"
	"workshop_server/structs"

	"github.com/MonkyMars/gecho"
)

type ServiceManager struct {
	CacheService   *CacheService
	HealthService  *HealthService
	ImageService   *ImageService
	SessionService *EditSessionService
}

func NewServiceManager(logger *gecho.Logger, cfg *structs.Config, db *database.DB, objects storage.ObjectStore) (*ServiceManager, error) {
	cacheService := NewCacheService(logger, cfg)
	healthService := NewHealthService(logger, db, cacheService)
	imageRepository := NewImageRepository(db)
	imageService := NewImageService(logger, cfg, imageRepository, objects, cacheService)

	sessionService, err := NewEditSessionService(logger, cfg, imageService, imageRepository)
	if err != nil {
		return nil, err
	}

	return &ServiceManager{
		CacheService:   cacheService,
		HealthService:  healthService,
		ImageService:   imageService,
		SessionService: sessionService,
	}, nil
}

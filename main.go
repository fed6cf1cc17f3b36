package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"workshop_server/api"
	"workshop_server/config"
	"workshop_server/database"
	"workshop_server/services"
	"workshop_server/storage"
	"workshop_server/structs"

	"github.com/MonkyMars/gecho"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

var logger *gecho.Logger
var cfg *structs.Config

// init function to load environment variables and initialize logger and database
func init() {
	envErr := godotenv.Load()

	cfg = config.GetConfig()
	logger = config.InitializeLogger()

	if envErr != nil {
		logger.Warn("No .env file found or error loading .env file, proceeding with system environment variables")
	}

	if err := database.Initialize(cfg.Database, logger); err != nil {
		logger.Fatal("Failed to initialize database", gecho.Field("error", err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.GetInstance()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("Failed to migrate database", gecho.Field("error", err))
	}

	disk, err := storage.NewLocalDiskStore(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to open image storage", gecho.Field("error", err))
	}
	observer, err := storage.NewPrometheusObserver("workshop", prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to register storage metrics", gecho.Field("error", err))
	}
	objects := storage.NewObservedStore(storage.NewRetryingStore(disk, cfg.Storage.DeleteMaxRetry, nil), observer)

	sm, err := services.NewServiceManager(logger, cfg, db, objects)
	if err != nil {
		logger.Fatal("Failed to initialize services", gecho.Field("error", err))
	}
	go sm.SessionService.RunJanitor(ctx, time.Minute)

	mwLogger := gecho.NewLogger(gecho.NewConfig(gecho.WithShowCaller(false), gecho.WithLogLevel(gecho.ParseLogLevel(config.GetLogLevel()))))

	server := &http.Server{
		Addr:           cfg.Server.Port,
		Handler:        api.App(cfg, logger, mwLogger, sm, disk.Handler()),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info(fmt.Sprintf("Starting server (%s) on %s", cfg.Server.AppName, cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", gecho.Field("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(server, sm)
}

// shutdown drains in-flight requests, then releases staged sessions and
// closes the cache and database pools
func shutdown(server *http.Server, sm *services.ServiceManager) {
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", gecho.Field("error", err))
	}

	sm.SessionService.Close()
	if err := sm.CacheService.Close(); err != nil {
		logger.Warn("Failed to close cache", gecho.Field("error", err))
	}
	if err := database.CloseInstance(); err != nil {
		logger.Warn("Failed to close database", gecho.Field("error", err))
	}

	logger.Info("Server stopped")
}

package container

import (
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/database"
	"site-mass-upload/internal/handlers"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/middleware"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/repositories"
	"site-mass-upload/internal/security"
	"site-mass-upload/internal/server"
	"site-mass-upload/internal/services"
)

// Module provides dependency injection configuration
var Module = fx.Options(
	// Configuration
	fx.Provide(config.LoadConfig),

	// Logging
	fx.Provide(logger.NewLogger),

	// Entity registry
	fx.Provide(registry.Default),

	// Database
	fx.Provide(database.NewConnection),
	fx.Provide(database.NewMigrator),
	fx.Provide(func(cfg *config.Config) *redis.Client {
		if !cfg.Cache.Enabled {
			return nil
		}
		return database.NewRedisClient(cfg)
	}),

	// Metrics
	fx.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return reg
	}),

	// Repositories
	fx.Provide(repositories.NewReferenceRepository),
	fx.Provide(repositories.NewRecordRepository),
	fx.Provide(repositories.NewImportRunRepository),

	// Services
	fx.Provide(services.NewKeyValueStore),
	fx.Provide(services.NewErrorHandler),
	fx.Provide(services.NewReferenceResolver),
	fx.Provide(services.NewRevalidationService),
	fx.Provide(services.NewImportService),
	fx.Provide(services.NewAuthenticationService),
	fx.Provide(services.NewMonitoringService),
	fx.Provide(services.NewNotificationService),

	// Handlers
	fx.Provide(handlers.NewUploadMetrics),
	fx.Provide(handlers.NewHealthHandler),
	fx.Provide(handlers.NewMassUploadHandler),
	fx.Provide(handlers.NewSecurityHandler),

	// Middleware
	fx.Provide(middleware.NewAuthenticationMiddleware),

	// Security
	fx.Provide(security.NewSecurityManager),

	// Server
	fx.Provide(server.NewServer),

	fx.Invoke(func(ns *services.NotificationService, eh *services.ErrorHandler) {
		ns.Attach(eh)
	}),

	fx.Invoke(func(h *handlers.HealthHandler, db *database.Connection, rdb *redis.Client, reg *registry.Registry) {
		h.RegisterDefaultHealthChecks(db, rdb, reg)
	}),

	// Invoke migrations on startup
	fx.Invoke(func(migrator *database.Migrator) error {
		return migrator.Up()
	}),
)

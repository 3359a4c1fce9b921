package main

import (
	"context"

	"go.uber.org/fx"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/container"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/security"
	"site-mass-upload/internal/server"
)

func main() {
	app := fx.New(
		container.Module,
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			log *logger.Logger,
			srv *server.Server,
			securityManager *security.SecurityManager,
		) {
			stopCleanup := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.WithField("port", cfg.Server.Port).Info("Starting site mass upload service")
					securityManager.LogConfigProblems()
					securityManager.StartCleanup(stopCleanup)

					// Start server in background
					go func() {
						if err := srv.Start(context.Background()); err != nil {
							log.WithError(err).Error("Server error")
						}
					}()

					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Info("Shutting down site mass upload service")
					close(stopCleanup)
					return srv.Stop()
				},
			})
		}),
	)

	app.Run()
}

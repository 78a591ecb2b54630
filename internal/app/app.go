package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/config"
	"github.com/temcen/lotus/internal/database"
	"github.com/temcen/lotus/internal/handlers"
	"github.com/temcen/lotus/internal/middleware"
	"github.com/temcen/lotus/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel     context.CancelFunc
	background sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(app.logger, services)
	app.router = newRouter(cfg, app.logger, app.handlers, services.RateLimit)

	app.startBackground()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.services.Health.StartCollectors(ctx)

	if a.services.MessageBus != nil {
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			err := a.services.MessageBus.ConsumeReferenceUpdates(ctx, a.services.Library.ReferencesChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Error("Reference update consumer stopped")
			}
		}()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	a.cancel()

	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Background workers did not stop before the shutdown deadline")
	}

	var errs []error
	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing services")
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func newRouter(cfg *config.Config, logger *logrus.Logger, h *handlers.Handlers, limiter services.RateLimiterInterface) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg))

	router.GET("/health", h.Health.Check)
	router.GET("/health/live", h.Health.Live)
	if h.Docs != nil {
		h.Docs.RegisterRoutes(router)
	}

	if cfg.Monitoring.Enabled {
		metricsPath := cfg.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.Use(middleware.RateLimit(limiter, logger))

		api.POST("/assess", h.Assessment.Assess)

		ingredients := api.Group("/ingredients")
		{
			ingredients.GET("", h.Ingredient.List)
			ingredients.GET("/search", h.Ingredient.Search)
			ingredients.GET("/:id", h.Ingredient.Get)
		}
	}

	return router
}

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"

	"github.com/Ign14/PYMERP-sub000/docs"
	"github.com/Ign14/PYMERP-sub000/internal/app"
	"github.com/Ign14/PYMERP-sub000/internal/config"
	handlers "github.com/Ign14/PYMERP-sub000/internal/http/handler"
	"github.com/Ign14/PYMERP-sub000/internal/http/middleware"
	"github.com/Ign14/PYMERP-sub000/internal/logging"
	tracing "github.com/Ign14/PYMERP-sub000/internal/otel"
)

// @title Billing API
// @version 1.0
// @description Fiscal and non-fiscal document issuance with offline contingency and provider reconciliation.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize billing components")
	}
	defer components.Close()

	prom, err := middleware.NewPrometheusMiddleware(components.Registry)
	if err != nil {
		logger.WithError(err).Fatal("failed to register http metrics")
	}

	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(logger),
	})

	server.Use(otelfiber.Middleware())
	server.Use(middleware.RequestID())
	server.Use(middleware.Logger(logger))
	server.Use(prom.Handler())

	handlers.RegisterRoutes(server, handlers.Routes{
		DB:       components.DB,
		Billing:  components.Billing,
		Webhooks: components.Webhooks,
		Verifier: components.Verifier,
		Gatherer: components.Registry,
		Logger:   logger,
	})

	// Swagger UI with dynamic host and scheme
	server.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	if cfg.Sync.Enabled {
		logger.WithField("interval", cfg.Sync.Interval.String()).Info("contingency sync running in-process")
		go components.Sync.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Warn("server shutdown")
		}
	}()

	addr := ":" + cfg.Port
	logger.WithField("addr", addr).Info("billing api listening")
	if err := server.Listen(addr); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}
}

// Package app assembles the billing components from configuration. The API
// server and the sync CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Ign14/PYMERP-sub000/internal/config"
	"github.com/Ign14/PYMERP-sub000/internal/database"
	"github.com/Ign14/PYMERP-sub000/internal/database/migration"
	"github.com/Ign14/PYMERP-sub000/internal/events"
	"github.com/Ign14/PYMERP-sub000/internal/idempotency"
	"github.com/Ign14/PYMERP-sub000/internal/job"
	"github.com/Ign14/PYMERP-sub000/internal/metrics"
	"github.com/Ign14/PYMERP-sub000/internal/provider"
	"github.com/Ign14/PYMERP-sub000/internal/render"
	"github.com/Ign14/PYMERP-sub000/internal/repository/memory"
	"github.com/Ign14/PYMERP-sub000/internal/repository/postgres"
	"github.com/Ign14/PYMERP-sub000/internal/security"
	"github.com/Ign14/PYMERP-sub000/internal/service"
	"github.com/Ign14/PYMERP-sub000/internal/storage"
)

// Components are the wired billing collaborators. Close releases every connection.
type Components struct {
	DB       *sql.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Billing
	Billing  service.BillingService
	Webhooks service.WebhookReconciler
	Sync     *job.ContingencySyncJob
	Verifier *security.Verifier

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Build connects the backends selected by cfg. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (_ *Components, err error) {
	c := &Components{Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if c.Metrics, err = metrics.NewBilling(c.Registry); err != nil {
		return nil, fmt.Errorf("register billing metrics: %w", err)
	}

	deps := service.Dependencies{
		Renderer:     render.NewPDFRenderer(cfg.CompanyName),
		Downloader:   provider.NewHTTPDownloader(cfg.Provider.DownloadTimeout),
		Metrics:      c.Metrics,
		Logger:       logger,
		ProviderName: cfg.Provider.Name,
	}

	if err = c.openRepositories(ctx, cfg, logger, &deps); err != nil {
		return nil, err
	}

	if cfg.Redis.Address != "" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, c.Redis.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err = c.Redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	if deps.Keys, err = c.idempotencyStore(cfg); err != nil {
		return nil, err
	}

	blobs, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	deps.FileStore = storage.NewFileStore(blobs)

	if cfg.Provider.BaseURL == "" {
		logger.Warn("PROVIDER_BASE_URL not set, fiscal documents stay queued until a provider is configured")
		deps.Gateway = provider.Unconfigured{}
	} else {
		deps.Gateway = provider.NewHTTPGateway(cfg.Provider)
	}

	if deps.Publisher, err = c.publisher(ctx, cfg, logger); err != nil {
		return nil, err
	}

	c.Billing = service.NewBillingService(deps, service.Options{
		AwaitTimeout:    cfg.Idempotency.WaitTimeout,
		ProviderTimeout: cfg.Provider.Timeout,
	})
	c.Webhooks = service.NewWebhookReconciler(deps)
	c.Verifier = security.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set, every provider callback will be rejected")
	}

	syncDeps := job.Dependencies{
		Fiscal:   deps.Fiscal,
		Queue:    deps.Queue,
		Gateway:  deps.Gateway,
		Archiver: service.NewOfficialArchiver(deps),
		Metrics:  c.Metrics,
		Logger:   logger,
	}
	if c.Redis != nil {
		syncDeps.Locker = job.NewRedisRunLocker(c.Redis)
	}
	c.Sync = job.NewContingencySyncJob(syncDeps, job.ConfigFrom(cfg))

	return c, nil
}

func (c *Components) openRepositories(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger, deps *service.Dependencies) error {
	switch cfg.RepositoryDriver {
	case "", "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		c.DB = db
		c.closers = append(c.closers, db.Close)
		if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		deps.Fiscal = postgres.NewFiscalDocumentPostgres(db)
		deps.NonFiscal = postgres.NewNonFiscalDocumentPostgres(db)
		deps.Files = postgres.NewDocumentFilePostgres(db)
		deps.Queue = postgres.NewContingencyQueuePostgres(db)
		deps.Sales = postgres.NewSalePostgres(db)
	case "memory":
		logger.Warn("REPOSITORY_DRIVER=memory, documents are lost on restart")
		store := memory.NewStore()
		deps.Fiscal = store.Fiscal()
		deps.NonFiscal = store.NonFiscal()
		deps.Files = store.Files()
		deps.Queue = store.Queue()
		deps.Sales = store.Sales()
	default:
		return fmt.Errorf("unsupported repository driver %q", cfg.RepositoryDriver)
	}
	return nil
}

func (c *Components) idempotencyStore(cfg *config.AppConfig) (idempotency.Store, error) {
	opts := idempotency.Options{
		TTL:          cfg.Idempotency.TTL,
		PollInterval: cfg.Idempotency.PollInterval,
	}
	switch cfg.Idempotency.Driver {
	case "", "memory":
		return idempotency.NewMemoryStore(opts), nil
	case "redis":
		if c.Redis == nil {
			return nil, errors.New("IDEMPOTENCY_DRIVER=redis requires REDIS_ADDRESS")
		}
		return idempotency.NewRedisStore(c.Redis, opts), nil
	default:
		return nil, fmt.Errorf("unsupported idempotency driver %q", cfg.Idempotency.Driver)
	}
}

func (c *Components) publisher(ctx context.Context, cfg *config.AppConfig, logger *logrus.Logger) (events.Publisher, error) {
	if cfg.PubSub.ProjectID == "" {
		return events.NewLogPublisher(logger), nil
	}
	p, err := events.NewPubSubPublisher(ctx, cfg.PubSub)
	if err != nil {
		return nil, fmt.Errorf("connect to pubsub: %w", err)
	}
	c.closers = append(c.closers, p.Close)
	return p, nil
}

// Package server assembles the scrape pipeline from configuration and owns
// the lifetime of everything it builds.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/metadata-scraper/internal/api"
	"github.com/JakeFAU/metadata-scraper/internal/catalog"
	"github.com/JakeFAU/metadata-scraper/internal/clock/system"
	"github.com/JakeFAU/metadata-scraper/internal/config"
	collyfetcher "github.com/JakeFAU/metadata-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/metadata-scraper/internal/fetcher/headless"
	runid "github.com/JakeFAU/metadata-scraper/internal/id/uuid"
	"github.com/JakeFAU/metadata-scraper/internal/loader"
	"github.com/JakeFAU/metadata-scraper/internal/metrics"
	"github.com/JakeFAU/metadata-scraper/internal/output"
	"github.com/JakeFAU/metadata-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/metadata-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/metadata-scraper/internal/progress/sinks"
	"github.com/JakeFAU/metadata-scraper/internal/publisher"
	memorypublisher "github.com/JakeFAU/metadata-scraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/metadata-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/metadata-scraper/internal/scheduler"
	"github.com/JakeFAU/metadata-scraper/internal/storage"
	pgstore "github.com/JakeFAU/metadata-scraper/internal/storage/postgres"
	"github.com/JakeFAU/metadata-scraper/internal/store"
	"github.com/JakeFAU/metadata-scraper/internal/telemetry"
)

// Version is stamped into traces.
var Version = "dev"

const persistTimeout = time.Minute

// Option overrides a collaborator that Build would otherwise construct
// from configuration.
type Option func(*App)

// WithDriver replaces the chromedp driver.
func WithDriver(d headless.Driver) Option {
	return func(a *App) { a.driver = d }
}

// WithBlobStore replaces the configured output backend.
func WithBlobStore(s storage.BlobStore) Option {
	return func(a *App) { a.blobStore = s }
}

// WithPublisher replaces the configured notice publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(a *App) { a.pub = p }
}

// WithRegisterer registers progress collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithRepositories replaces the postgres run history and entity catalog.
func WithRepositories(runs store.RunRepository, entities store.CatalogRepository) Option {
	return func(a *App) {
		a.runRepo = runs
		a.catalogRepo = entities
	}
}

// App contains the pipeline's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	ids    *runid.Generator

	discoverer *catalog.Discoverer
	driver     headless.Driver
	limiter    loader.Waiter
	blobStore  storage.BlobStore
	writer     *output.Writer
	pub        publisher.Publisher
	notifier   *publisher.Notifier
	registerer prometheus.Registerer

	pgPool      *pgxpool.Pool
	runRepo     store.RunRepository
	catalogRepo store.CatalogRepository
	progressHub *progress.Hub

	mu     sync.RWMutex
	sched  *scheduler.Scheduler
	status *api.Server

	closers        []func() error
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the pipeline's dependencies. Optional backends (postgres,
// Pub/Sub, GCS, tracing export) are only dialed when configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    runid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	metrics.Init()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerProvider = tp

	a.discoverer = catalog.NewDiscoverer(
		catalog.Config{IndexURL: cfg.Catalog.IndexURL, BaseURL: cfg.Catalog.BaseURL},
		collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.Catalog.UserAgent,
			Timeout:     cfg.Catalog.Timeout(),
			MaxAttempts: cfg.Catalog.MaxRetries,
		}, logger.Named("index_fetcher")),
		logger.Named("catalog"),
	)
	if a.driver == nil {
		a.driver = headless.NewChromedp(headless.Config{
			Headless:       cfg.Browser.Headless,
			UserAgent:      cfg.Browser.UserAgent,
			AcceptLanguage: cfg.Browser.AcceptLanguage,
			WindowWidth:    cfg.Browser.WindowWidth,
			WindowHeight:   cfg.Browser.WindowHeight,
			Locale:         cfg.Browser.Locale,
			Timezone:       cfg.Browser.Timezone,
		}, logger.Named("chromedp"))
	}
	if cfg.RateLimit.Enabled {
		a.limiter = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RateLimit.RPS, DefaultBurst: cfg.RateLimit.Burst})
		logger.Info("navigation rate limit enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst))
	}

	if err := a.setupStorage(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.setupDatabase(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.setupProgress(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if cfg.Server.Enabled {
		a.status = api.NewServer(api.Options{
			Status: a,
			Runs:   a.runRepo,
			Ready:  a.ready,
			Logger: logger.Named("api"),
		})
	}
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	if a.blobStore == nil {
		blobStore, closeFn, err := storage.Open(ctx, a.cfg.Output)
		if err != nil {
			return fmt.Errorf("blob store init failed: %w", err)
		}
		a.blobStore = blobStore
		a.closers = append(a.closers, closeFn)
		a.logger.Info("output backend ready",
			zap.String("backend", a.cfg.Output.Backend),
			zap.String("path", a.cfg.Output.Path))
	}
	a.writer = output.NewWriter(a.blobStore, a.cfg.Output.ContentType, a.logger.Named("output"))
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.runRepo != nil || a.catalogRepo != nil {
		return nil
	}
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN configured, run history disabled")
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:      a.cfg.Database.DSN,
		MaxConns: a.cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pgPool = pool
	runs, err := pgstore.NewRunStore(pool, a.cfg.Database.RunsTable)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	entities, err := pgstore.NewCatalogStore(pool, a.cfg.Database.EntitiesTable)
	if err != nil {
		return fmt.Errorf("catalog store init failed: %w", err)
	}
	a.runRepo = runs
	a.catalogRepo = entities
	a.logger.Info("run history enabled",
		zap.String("runs_table", a.cfg.Database.RunsTable),
		zap.String("entities_table", a.cfg.Database.EntitiesTable))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	topic := a.cfg.PubSub.TopicName
	if a.pub == nil {
		if topic == "" {
			a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
			a.pub = memorypublisher.New()
		} else {
			pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, topic)
			if err != nil {
				return fmt.Errorf("pubsub init failed: %w", err)
			}
			a.pub = pub
			a.closers = append(a.closers, pub.Close)
			a.logger.Info("Pub/Sub publisher initialized",
				zap.String("project", a.cfg.PubSub.ProjectID),
				zap.String("topic", topic))
		}
	}
	a.notifier = publisher.NewNotifier(a.pub, topic, a.logger.Named("notify"))
	return nil
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	}
	if a.cfg.Logging.ProgressBar {
		sinkList = append(sinkList, progresssinks.NewBarSink(os.Stderr, func() int64 {
			return a.Snapshot().Total
		}))
	}
	if a.runRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.runRepo, a.logger.Named("progress_store")))
	}
	a.progressHub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...)
	return nil
}

// Snapshot reports the current batch, or an idle snapshot before the
// scheduler starts.
func (a *App) Snapshot() scheduler.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.sched == nil {
		return scheduler.Snapshot{}
	}
	return a.sched.Snapshot()
}

func (a *App) ready(ctx context.Context) error {
	if a.pgPool == nil {
		return nil
	}
	if err := a.pgPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close flushes progress, releases backends and flushes spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
		return err
	}
	return nil
}

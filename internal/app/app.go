// Package app initializes and holds the long-lived services a harvester
// process needs, acting as a dependency injection container. NewApp is the
// central point for service construction and fails fast when any critical
// backend cannot be reached.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	browser "github.com/EDDYCJY/fake-useragent"
	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/api"
	"github.com/arcadehq/listing-harvester/internal/archive"
	"github.com/arcadehq/listing-harvester/internal/clock/system"
	"github.com/arcadehq/listing-harvester/internal/config"
	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/fetch/bypass"
	"github.com/arcadehq/listing-harvester/internal/fetch/plain"
	"github.com/arcadehq/listing-harvester/internal/fetch/rendered"
	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/hash/sha256"
	"github.com/arcadehq/listing-harvester/internal/id/uuid"
	"github.com/arcadehq/listing-harvester/internal/identity"
	"github.com/arcadehq/listing-harvester/internal/logging"
	"github.com/arcadehq/listing-harvester/internal/progress"
	"github.com/arcadehq/listing-harvester/internal/progress/sinks"
	pubmemory "github.com/arcadehq/listing-harvester/internal/publisher/memory"
	pubsubpub "github.com/arcadehq/listing-harvester/internal/publisher/pubsub"
	"github.com/arcadehq/listing-harvester/internal/storage/gcs"
	"github.com/arcadehq/listing-harvester/internal/storage/local"
	memstorage "github.com/arcadehq/listing-harvester/internal/storage/memory"
	"github.com/arcadehq/listing-harvester/internal/storage/postgres"
	"github.com/arcadehq/listing-harvester/internal/store"
)

// App holds the shared, long-lived services for one harvester process. It is
// built once at startup from the loaded configuration and handed to the
// commands that need it. Blobs and Status are nil when their features are
// disabled.
type App struct {
	Cfg        config.Config
	Logger     *zap.Logger
	Identities *identity.Pool
	Engine     harvest.FetchEngine
	Blobs      harvest.BlobStore
	Catalog    harvest.CatalogStore
	Publisher  harvest.Publisher
	RunRepo    store.RunRepository
	Hub        *progress.Hub
	Status     *api.Server
	Clock      harvest.Clock
	IDs        *uuid.Generator

	closers   []func()
	closeOnce sync.Once
}

// NewApp wires every service from cfg. Provider selection follows the
// configuration (archive.provider, stats.provider, catalog.provider,
// publisher.provider); unknown providers and unreachable backends are
// startup errors so a misconfigured run never gets past initialization.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var closers []func()

	// Egress identities: proxy routes from the proxy file plus Tor when
	// enabled, user agents static or per-request dynamic.
	proxies, err := identity.LoadProxyFile(cfg.Identity.ProxiesFile)
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	if cfg.Identity.TorEnabled && cfg.Identity.TorAddress != "" {
		proxies = append(proxies, cfg.Identity.TorAddress)
	}
	idOpts := identity.Options{Proxies: proxies, Agents: cfg.Identity.ExtraAgents}
	if cfg.Identity.DynamicAgents {
		idOpts.DynamicAgent = browser.Random
	}
	pool := identity.New(idOpts)
	logger.Info("identity pool ready",
		zap.Int("proxies", pool.ProxyCount()),
		zap.Bool("tor", cfg.Identity.TorEnabled),
		zap.Bool("dynamic_agents", cfg.Identity.DynamicAgents))

	// Blob storage backs both page archiving and result uploads.
	var blobs harvest.BlobStore
	if cfg.Archive.Enabled || cfg.Archive.UploadResults {
		switch cfg.Archive.Provider {
		case "local":
			blobs, err = local.New(local.Config{BaseDir: cfg.Archive.BaseDir})
			if err != nil {
				return nil, fmt.Errorf("init local blob store: %w", err)
			}
			logger.Info("using local blob store", zap.String("base_dir", cfg.Archive.BaseDir))
		case "gcs":
			client, err := cloudstorage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("create storage client: %w", err)
			}
			gcsStore, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.Bucket})
			if err != nil {
				return nil, fmt.Errorf("init gcs blob store: %w", err)
			}
			if err := gcsStore.VerifyBucket(ctx); err != nil {
				return nil, err
			}
			closers = append(closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("close storage client", zap.Error(err))
				}
			})
			blobs = gcsStore
			logger.Info("using gcs blob store", zap.String("bucket", cfg.Archive.Bucket))
		case "memory":
			blobs = memstorage.NewBlobStore()
		default:
			return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
		}
	}

	var archiver fetch.Archiver
	if cfg.Archive.Enabled && blobs != nil {
		archiver = archive.New(blobs, sha256.New(), cfg.Archive.Prefix)
	}

	// One getter per strategy. Rendering keeps a headless browser warm, so
	// it is only built when enabled; the noop stand-in reports a clear
	// error for sources that ask for it anyway.
	getters := map[harvest.Strategy]fetch.Getter{
		harvest.StrategyPlain:  plain.New(plain.Config{Timeout: cfg.Fetch.Timeout, MaxBodyBytes: cfg.Fetch.MaxBodyBytes}),
		harvest.StrategyBypass: bypass.New(bypass.Config{Timeout: cfg.Fetch.Timeout}),
	}
	if cfg.Rendered.Enabled {
		rf, err := rendered.New(rendered.Config{
			MaxParallel: cfg.Rendered.MaxParallel,
			SettleDelay: cfg.Rendered.SettleDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("init rendered fetcher: %w", err)
		}
		closers = append(closers, rf.Close)
		getters[harvest.StrategyRendered] = rf
	} else {
		getters[harvest.StrategyRendered] = rendered.NewNoop()
	}

	engine := fetch.New(fetch.Config{
		Timeout:           cfg.Fetch.Timeout,
		DelayMin:          cfg.Fetch.DelayMin,
		DelayMax:          cfg.Fetch.DelayMax,
		RequestsPerMinute: cfg.Fetch.RequestsPerMinute,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
		BlockIndicators:   cfg.Fetch.BlockIndicators,
	}, pool, getters, archiver, logging.Named(logger, "fetch"))

	// Run statistics repository backing the progress store sink and the
	// status API.
	var runRepo store.RunRepository
	switch cfg.Stats.Provider {
	case "memory":
		runRepo = memstorage.NewRunStore()
	case "postgres":
		pgRuns, err := postgres.NewRunStore(ctx, cfg.Stats.DSN)
		if err != nil {
			return nil, fmt.Errorf("init run store: %w", err)
		}
		closers = append(closers, pgRuns.Close)
		runRepo = pgRuns
		logger.Info("using postgres run store")
	default:
		return nil, fmt.Errorf("unknown stats provider: %s", cfg.Stats.Provider)
	}

	// Catalog store for the final deduplicated records.
	var catalog harvest.CatalogStore
	switch cfg.Catalog.Provider {
	case "noop":
		catalog = noopCatalog{}
	case "postgres":
		pgCatalog, err := postgres.NewCatalogStore(ctx, postgres.CatalogStoreConfig{
			DSN:   cfg.Catalog.DSN,
			Table: cfg.Catalog.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init catalog store: %w", err)
		}
		closers = append(closers, pgCatalog.Close)
		catalog = pgCatalog
		logger.Info("using postgres catalog store", zap.String("table", cfg.Catalog.Table))
	default:
		return nil, fmt.Errorf("unknown catalog provider: %s", cfg.Catalog.Provider)
	}

	// Run-summary publisher.
	var pub harvest.Publisher
	switch cfg.Publisher.Provider {
	case "noop":
		pub = noopPublisher{}
	case "memory":
		pub = pubmemory.New()
	case "pubsub":
		ps, err := pubsubpub.New(ctx, cfg.Publisher.ProjectID, cfg.Publisher.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		if err := ps.VerifyTopic(ctx); err != nil {
			return nil, err
		}
		closers = append(closers, func() {
			if err := ps.Close(); err != nil {
				logger.Warn("close pubsub publisher", zap.Error(err))
			}
		})
		pub = ps
		logger.Info("using pubsub publisher",
			zap.String("project", cfg.Publisher.ProjectID),
			zap.String("topic", cfg.Publisher.Topic))
	default:
		return nil, fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}

	// Progress hub fans run events out to the log, Prometheus and the run
	// repository. Its closer runs before the repository closers so the
	// final flush still has a live store.
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	hubLogger := logging.Named(logger, "progress")
	hub := progress.NewHub(progress.Config{Logger: hubLogger},
		sinks.NewLogSink(hubLogger),
		promSink,
		sinks.NewStoreSink(runRepo, hubLogger),
	)
	closers = append(closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("close progress hub", zap.Error(err))
		}
	})

	// Optional read-only status server.
	var status *api.Server
	if cfg.Status.Addr != "" {
		apiLogger := logging.Named(logger, "api")
		status = api.NewServer(api.NewRunHandler(runRepo, apiLogger), cfg.Status.APIKey, apiLogger)
		srv, addr := status, cfg.Status.Addr
		go func() {
			if err := srv.Start(addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		closers = append(closers, func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				logger.Warn("shutdown status server", zap.Error(err))
			}
		})
	}

	logger.Info("application services initialized")

	return &App{
		Cfg:        cfg,
		Logger:     logger,
		Identities: pool,
		Engine:     engine,
		Blobs:      blobs,
		Catalog:    catalog,
		Publisher:  pub,
		RunRepo:    runRepo,
		Hub:        hub,
		Status:     status,
		Clock:      system.New(),
		IDs:        uuid.New(),
		closers:    closers,
	}, nil
}

// Close shuts services down in reverse construction order, so the status
// server and progress hub drain before the stores they write to go away.
// It is safe to call more than once; only the first call does work.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Logger.Info("shutting down application services")
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
		_ = a.Logger.Sync()
	})
}

// noopCatalog discards batches when no catalog backend is configured.
type noopCatalog struct{}

func (noopCatalog) StoreBatch(context.Context, string, []harvest.GameRecord) error { return nil }
func (noopCatalog) Close()                                                         {}

// noopPublisher drops summaries when no publisher backend is configured.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) (string, error) { return "", nil }

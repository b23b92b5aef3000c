// Package app builds the rankwatch dependency graph from configuration and
// owns the long-lived clients behind it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/api"
	"github.com/JakeFAU/rankwatch/internal/archive"
	memorycache "github.com/JakeFAU/rankwatch/internal/cache/memory"
	rediscache "github.com/JakeFAU/rankwatch/internal/cache/redis"
	"github.com/JakeFAU/rankwatch/internal/clock/system"
	"github.com/JakeFAU/rankwatch/internal/config"
	collyfetcher "github.com/JakeFAU/rankwatch/internal/fetcher/colly"
	"github.com/JakeFAU/rankwatch/internal/fetcher/headless"
	"github.com/JakeFAU/rankwatch/internal/hash/sha256"
	"github.com/JakeFAU/rankwatch/internal/headless/detector"
	"github.com/JakeFAU/rankwatch/internal/history"
	"github.com/JakeFAU/rankwatch/internal/id/uuid"
	"github.com/JakeFAU/rankwatch/internal/metrics"
	"github.com/JakeFAU/rankwatch/internal/product"
	memorypublisher "github.com/JakeFAU/rankwatch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/rankwatch/internal/publisher/pubsub"
	"github.com/JakeFAU/rankwatch/internal/rank"
	gcsstorage "github.com/JakeFAU/rankwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/rankwatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/rankwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/rankwatch/internal/storage/postgres"
)

// memoryEventLimit bounds the events kept when Pub/Sub is disabled.
const memoryEventLimit = 100

type snapshotBackend interface {
	rank.SnapshotStore
	rank.HistoryQuery
	rank.Pinger
}

type cacheBackend interface {
	rank.ResultCache
	rank.Pinger
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	store        snapshotBackend
	cache        cacheBackend
	archiver     *archive.Archiver
	publisher    rank.Publisher
	ring         *history.Ring
	orchestrator *rank.Orchestrator
	apiServer    *api.Server

	pgStore      *pgstore.SnapshotStore
	redisCache   *rediscache.Cache
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
}

// New builds every component selected by cfg. On error, clients opened so far are closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeInfrastructure()
		}
	}()

	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)

	if a.clock, err = system.NewNamed(cfg.Clock.Location); err != nil {
		return nil, fmt.Errorf("clock init failed: %w", err)
	}
	if err = a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err = a.setupCache(); err != nil {
		return nil, err
	}
	if err = a.setupArchive(ctx); err != nil {
		return nil, err
	}
	if err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}
	a.ring = history.NewRing(cfg.History.Capacity)
	logger.Info("recent crawl history initialized", zap.Int("capacity", a.ring.Cap()))

	if err = a.setupOrchestrator(); err != nil {
		return nil, err
	}

	checks := map[string]rank.Pinger{"store": a.store}
	if a.cache != nil {
		checks["cache"] = a.cache
	}
	a.apiServer, err = api.NewServer(api.Deps{
		Crawler: a.orchestrator,
		History: a.store,
		Recent:  a.ring,
		Checks:  checks,
	}, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("api server init failed: %w", err)
	}
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewSnapshotStore(ctx, pgstore.Config{
			DSN:             a.cfg.DB.DSN,
			TablePrefix:     a.cfg.DB.TablePrefix,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
			Regions:         rank.DefaultRegions,
		})
		if err != nil {
			return fmt.Errorf("snapshot store init failed: %w", err)
		}
		a.pgStore = store
		a.store = store
		if a.cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("ensure schema failed: %w", err)
			}
		}
		a.logger.Info("postgres snapshot store initialized", zap.String("table_prefix", a.cfg.DB.TablePrefix))
	default:
		a.logger.Info("using in-memory snapshot store")
		a.store = memorystorage.NewSnapshotStore()
	}
	return nil
}

func (a *App) setupCache() error {
	switch a.cfg.Cache.Backend {
	case config.BackendRedis:
		c, err := rediscache.New(rediscache.Config{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		a.redisCache = c
		a.cache = c
		a.logger.Info("redis result cache initialized", zap.String("addr", a.cfg.Cache.RedisAddr))
	case config.BackendMemory:
		a.cache = memorycache.New(a.clock.Now)
		a.logger.Info("using in-memory result cache")
	default:
		a.logger.Info("result cache disabled")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	var blobs rank.BlobStore
	switch a.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket:   a.cfg.Archive.GCSBucket,
			Metadata: map[string]string{"source": "rankwatch"},
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		blobs = store
		a.logger.Debug("GCS archive backend", zap.String("bucket", a.cfg.Archive.GCSBucket))
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = store
		a.logger.Debug("local archive backend", zap.String("path", a.cfg.Archive.LocalDir))
	case config.BackendMemory:
		blobs = memorystorage.NewBlobStore()
	default:
		a.logger.Info("search page archive disabled")
		return nil
	}
	archiver, err := archive.New(blobs, sha256.New(), a.clock, a.cfg.Archive.Prefix)
	if err != nil {
		return fmt.Errorf("archiver init failed: %w", err)
	}
	a.archiver = archiver
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.logger.Warn("Pub/Sub disabled, using in-memory publisher")
		a.publisher = memorypublisher.NewBounded(memoryEventLimit)
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.gcpPublisher = gcppublisher.New(client)
	a.publisher = a.gcpPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.Crawl.Topic),
	)
	return nil
}

func (a *App) setupOrchestrator() error {
	hc := a.cfg.Headless
	launcher, err := headless.NewLauncher(headless.Config{
		MaxParallel:          hc.MaxParallel,
		UserAgent:            hc.UserAgent,
		ExecPath:             hc.ExecPath,
		Headless:             hc.Headless,
		DOMTimeout:           hc.DOMTimeout,
		IdleTimeout:          hc.IdleTimeout,
		HardTimeout:          hc.HardTimeout,
		SelectorWait:         hc.SelectorWait,
		CaptureTimeout:       hc.CaptureTimeout,
		ContentSelector:      hc.ContentSelector,
		BlockedResourceTypes: hc.BlockedResourceTypes,
		BlockedURLSubstrings: hc.BlockedURLSubstrings,
		BlockedHosts:         hc.BlockedHosts,
		CookieDomain:         hc.CookieDomain,
		CookieNames:          hc.CookieNames,
		NavigationQPS:        hc.NavigationQPS,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("headless launcher init failed: %w", err)
	}
	a.logger.Info("using headless launcher", zap.Int("max_parallel", hc.MaxParallel))

	details, err := a.detailLookup(launcher)
	if err != nil {
		return err
	}

	regions, err := rank.NewRegionSet(rank.DefaultRegions, a.cfg.Crawl.PrimaryRegion, a.cfg.Crawl.DerivedRegions)
	if err != nil {
		return fmt.Errorf("region set init failed: %w", err)
	}

	var pageArchive rank.PageArchiver
	if a.archiver != nil {
		pageArchive = a.archiver
	}
	deps := rank.Deps{
		Launcher: launcher,
		Resolver: rank.NewResolver(rank.ResolverConfig{
			MaxPages:   a.cfg.Crawl.MaxPages,
			PageDelay:  a.cfg.Crawl.PageDelay,
			SearchBase: a.cfg.Crawl.SearchBase,
		}, pageArchive, a.logger.Named("resolver")),
		Synth:     rank.NewSynthesizer(a.cfg.Crawl.Variance, rank.DefaultRand),
		Details:   details,
		Store:     a.store,
		History:   a.ring,
		Publisher: a.publisher,
		Hasher:    sha256.New(),
		Clock:     a.clock,
		IDs:       uuid.New(),
	}
	if a.cache != nil {
		deps.Cache = a.cache
	}
	a.orchestrator, err = rank.NewOrchestrator(rank.Config{
		Deadline:       a.cfg.Crawl.Deadline,
		PersistTimeout: a.cfg.Crawl.PersistTimeout,
		Regions:        regions,
		Topic:          a.cfg.Crawl.Topic,
	}, deps, a.logger.Named("orchestrator"))
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	plan := a.orchestrator.Regions()
	a.logger.Info("crawl orchestrator initialized",
		zap.String("primary_region", plan.Primary.Code),
		zap.Int("derived_regions", len(plan.Derived)),
		zap.Duration("deadline", a.cfg.Crawl.Deadline),
	)
	return nil
}

func (a *App) detailLookup(launcher *headless.Launcher) (*product.Lookup, error) {
	dc := a.cfg.Detail
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Headless.UserAgent,
		Timeout:   dc.ProbeTimeout,
		Headers:   http.Header{"Accept-Language": {"ru-RU,ru;q=0.9"}},
		RPS:       dc.RPS,
	})
	var rendered rank.Fetcher
	if dc.HeadlessFallback {
		pf, err := headless.NewPageFetcher(launcher)
		if err != nil {
			return nil, fmt.Errorf("headless detail fetcher init failed: %w", err)
		}
		rendered = pf
	}
	lookup, err := product.New(product.Config{
		BaseURL: dc.BaseURL,
		Timeout: dc.Timeout,
	}, probe, rendered, detector.NewHeuristic(dc.PromotionThreshold), a.logger)
	if err != nil {
		return nil, fmt.Errorf("detail lookup init failed: %w", err)
	}
	return lookup, nil
}

// Orchestrator returns the crawl orchestrator.
func (a *App) Orchestrator() *rank.Orchestrator {
	return a.orchestrator
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases every client opened by New.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

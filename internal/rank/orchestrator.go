package rank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/rankwatch/internal/extract"
	"github.com/JakeFAU/rankwatch/internal/metrics"
)

// ErrorProductName marks product details that could not be produced.
const ErrorProductName = "Ошибка получения данных"

const (
	defaultDeadline       = 60 * time.Second
	defaultPersistTimeout = 10 * time.Second
)

// Config tunes the orchestrator.
type Config struct {
	Deadline       time.Duration
	PersistTimeout time.Duration
	Regions        RegionSet
	// Topic receives snapshot events when a Publisher is configured.
	Topic string
}

// Deps lists the collaborators of an Orchestrator. Store, History, Cache,
// Publisher, Hasher and IDs are optional.
type Deps struct {
	Launcher  BrowserLauncher
	Resolver  *Resolver
	Synth     *Synthesizer
	Details   DetailLookup
	Store     SnapshotStore
	History   HistoryRecorder
	Cache     ResultCache
	Publisher Publisher
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
}

// Orchestrator runs one crawl end to end and always returns a well-formed result.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewOrchestrator validates deps and applies config defaults.
func NewOrchestrator(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Launcher == nil:
		return nil, errors.New("browser launcher is required")
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Synth == nil:
		return nil, errors.New("synthesizer is required")
	case deps.Details == nil:
		return nil, errors.New("detail lookup is required")
	case deps.Cache != nil && deps.Hasher == nil:
		return nil, errors.New("hasher is required when a cache is configured")
	}
	if cfg.Regions.Primary.Code == "" {
		return nil, errors.New("primary region is required")
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

// Regions returns the configured crawl plan.
func (o *Orchestrator) Regions() RegionSet {
	return o.cfg.Regions
}

// Run crawls query for targets. It never fails: deadline overruns and internal
// errors produce a degraded result instead.
func (o *Orchestrator) Run(ctx context.Context, query string, targets Targets) CrawlResult {
	start := time.Now()
	logger := o.logger.With(zap.String("query", query), zap.String("primary", targets.Primary().ID))
	if ref, ok := ReferenceOf(targets); ok {
		logger = logger.With(zap.String("reference", ref.ID))
	}

	key := o.cacheKey(query, targets)
	if cached, ok := o.lookupCache(ctx, key, logger); ok {
		if o.deps.History != nil {
			o.deps.History.Record(cached)
		}
		metrics.ObserveCrawl(metrics.OutcomeCached, time.Since(start))
		return cached
	}

	workCtx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	type outcome struct {
		result CrawlResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("crawl panic: %v", rec)}
			}
		}()
		res, err := o.crawl(workCtx, query, targets)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.Error("crawl failed", zap.Error(out.err))
			metrics.ObserveCrawl(metrics.OutcomeFailed, time.Since(start))
			return o.degraded(query, targets)
		}
		result := out.result
		o.afterCrawl(ctx, key, &result, targets, logger)
		metrics.ObserveCrawl(metrics.OutcomeOK, time.Since(start))
		logger.Info("crawl finished", zap.Duration("elapsed", time.Since(start)))
		return result
	case <-workCtx.Done():
		// Cancelling the work context tears down the crawl's browser.
		cancel()
		logger.Warn("crawl abandoned",
			zap.Duration("deadline", o.cfg.Deadline),
			zap.Error(workCtx.Err()),
		)
		metrics.ObserveCrawl(metrics.OutcomeDeadline, time.Since(start))
		return o.degraded(query, targets)
	}
}

func (o *Orchestrator) crawl(ctx context.Context, query string, targets Targets) (CrawlResult, error) {
	var (
		regions  []RegionRanks
		products Products
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("rank regions panic: %v", rec)
			}
		}()
		rr, err := o.rankRegions(gctx, query, targets)
		if err != nil {
			return err
		}
		regions = rr
		return nil
	})
	g.Go(func() error {
		products.Primary = o.lookupDetail(gctx, targets.Primary().ID)
		return nil
	})
	if ref, ok := ReferenceOf(targets); ok {
		g.Go(func() error {
			info := o.lookupDetail(gctx, ref.ID)
			products.Reference = &info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CrawlResult{}, err
	}

	return CrawlResult{
		Products:    products,
		Positions:   BuildPositions(regions, targets),
		ChartPoints: BuildChart(regions, targets),
		Query:       query,
		CrawledAt:   o.deps.Clock.Now(),
		Regions:     regions,
	}, nil
}

// lookupDetail never panics: a failing lookup yields the placeholder product.
func (o *Orchestrator) lookupDetail(ctx context.Context, id string) (info ProductInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("detail lookup panic",
				zap.String("article_id", id),
				zap.Any("panic", rec),
			)
			info = PlaceholderProduct(id)
		}
	}()
	return o.deps.Details.Lookup(ctx, id)
}

func (o *Orchestrator) rankRegions(ctx context.Context, query string, targets Targets) ([]RegionRanks, error) {
	browser, err := o.deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			o.logger.Warn("close browser failed", zap.Error(closeErr))
		}
	}()

	primary := o.cfg.Regions.Primary
	ranks, err := o.resolvePrimary(ctx, browser, primary, query, targets)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("resolve %s: %w", primary.Code, ctxErr)
		}
		o.logger.Warn("region resolution failed, reporting not found",
			zap.String("region", primary.Code),
			zap.Error(err),
		)
		ranks = Ranks{}
	}
	for _, t := range targets.All() {
		metrics.ObserveTarget(string(t.Role), ranks.For(t.Role).Found())
	}

	out := make([]RegionRanks, 0, len(o.cfg.Regions.Derived)+1)
	out = append(out, RegionRanks{Region: primary, Ranks: ranks})
	return append(out, o.deps.Synth.Synthesize(ranks, targets, o.cfg.Regions.Derived)...), nil
}

func (o *Orchestrator) resolvePrimary(
	ctx context.Context,
	browser Browser,
	region Region,
	query string,
	targets Targets,
) (ranks Ranks, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("resolve panic: %v", rec)
		}
	}()
	page, err := browser.OpenPage(ctx, PageOptions{Region: &region})
	if err != nil {
		return Ranks{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	return o.deps.Resolver.Resolve(ctx, page, region, query, targets)
}

func (o *Orchestrator) afterCrawl(parent context.Context, key string, result *CrawlResult, targets Targets, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.cfg.PersistTimeout)
	defer cancel()

	if o.deps.Store != nil {
		o.persist(ctx, result, targets, logger)
	}
	if o.deps.History != nil {
		o.deps.History.Record(*result)
	}
	if o.deps.Cache != nil && key != "" {
		ttl := untilMidnight(result.CrawledAt)
		if err := o.deps.Cache.Put(ctx, key, *result, ttl); err != nil {
			logger.Warn("cache result failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, result *CrawlResult, targets Targets, logger *zap.Logger) {
	snap := Snapshot{
		Query:     result.Query,
		PrimaryID: targets.Primary().ID,
		Products:  result.Products,
		Regions:   result.Regions,
		CreatedAt: result.CrawledAt,
	}
	if ref, ok := ReferenceOf(targets); ok {
		snap.ReferenceID = ref.ID
	}
	if o.deps.IDs != nil {
		id, err := o.deps.IDs.NewID()
		if err != nil {
			logger.Warn("generate snapshot id failed", zap.Error(err))
			return
		}
		snap.ID = id
	}
	id, err := o.deps.Store.SaveSnapshot(ctx, snap)
	if err != nil {
		logger.Error("save snapshot failed", zap.Error(err))
		return
	}
	result.SnapshotID = id
	logger.Info("snapshot saved", zap.String("snapshot_id", id))

	if o.deps.Publisher == nil {
		return
	}
	event := SnapshotEvent{
		SnapshotID:  id,
		Query:       snap.Query,
		PrimaryID:   snap.PrimaryID,
		ReferenceID: snap.ReferenceID,
		CreatedAt:   snap.CreatedAt,
	}
	if len(snap.Regions) > 0 {
		event.PrimaryRank = snap.Regions[0].Ranks.Primary.Rank
		event.PrimaryPage = snap.Regions[0].Ranks.Primary.Page
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
		logger.Warn("publish snapshot event failed", zap.Error(err))
	}
}

func (o *Orchestrator) lookupCache(ctx context.Context, key string, logger *zap.Logger) (CrawlResult, bool) {
	if o.deps.Cache == nil || key == "" {
		return CrawlResult{}, false
	}
	cached, ok, err := o.deps.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache lookup failed", zap.Error(err))
		return CrawlResult{}, false
	}
	metrics.ObserveCacheLookup(ok)
	if !ok {
		return CrawlResult{}, false
	}
	cached.Cached = true
	logger.Info("reusing same-day result", zap.String("snapshot_id", cached.SnapshotID))
	return cached, true
}

func (o *Orchestrator) cacheKey(query string, targets Targets) string {
	if o.deps.Cache == nil {
		return ""
	}
	key, err := CacheKey(o.deps.Hasher, o.deps.Clock.Now(), query, targets)
	if err != nil {
		o.logger.Warn("build cache key failed", zap.Error(err))
		return ""
	}
	return key
}

func (o *Orchestrator) degraded(query string, targets Targets) CrawlResult {
	return DegradedResult(query, targets, o.cfg.Regions.Primary, o.deps.Clock.Now())
}

// CacheKey identifies a crawl within the calendar day of now.
func CacheKey(hasher Hasher, now time.Time, query string, targets Targets) (string, error) {
	reference := ""
	if ref, ok := ReferenceOf(targets); ok {
		reference = ref.ID
	}
	raw := strings.ToLower(strings.TrimSpace(query)) + "|" + targets.Primary().ID + "|" + reference
	digest, err := hasher.Hash([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("hash cache key: %w", err)
	}
	return "rankwatch:result:" + now.Format("2006-01-02") + ":" + digest, nil
}

// PlaceholderProduct stands in for details that could not be fetched.
func PlaceholderProduct(articleID string) ProductInfo {
	return ProductInfo{
		ID:        articleID,
		Name:      ErrorProductName,
		ArticleID: articleID,
		Price:     0,
		Image:     extract.NoImage,
		Brand:     extract.UnknownBrand,
	}
}

// DegradedResult is the explicit failure shape: placeholder products, one
// primary-region entry with error-marked ranks and unknown pages, and one zero chart point.
func DegradedResult(query string, targets Targets, primary Region, now time.Time) CrawlResult {
	products := Products{Primary: PlaceholderProduct(targets.Primary().ID)}
	pos := Position{
		Region:      primary.Name,
		PrimaryPage: Sentinel(NotFound),
		PrimaryRank: Sentinel(ErrorMark),
	}
	if ref, ok := ReferenceOf(targets); ok {
		info := PlaceholderProduct(ref.ID)
		products.Reference = &info
		page, rank := Sentinel(NotFound), Sentinel(ErrorMark)
		pos.ReferencePage = &page
		pos.ReferenceRank = &rank
	}
	return CrawlResult{
		Products:    products,
		Positions:   []Position{pos},
		ChartPoints: []ChartPoint{{Region: primary.Name}},
		Query:       query,
		CrawledAt:   now,
		Degraded:    true,
	}
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

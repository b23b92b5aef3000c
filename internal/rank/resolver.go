package rank

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/extract"
	"github.com/JakeFAU/rankwatch/internal/metrics"
)

// DefaultSearchBase is the marketplace search endpoint.
const DefaultSearchBase = "https://www.wildberries.ru/catalog/0/search.aspx"

// ResolverConfig bounds the page scan for one region.
type ResolverConfig struct {
	MaxPages   int
	PageDelay  time.Duration
	SearchBase string
}

// Resolver scans paginated search results for one real region.
type Resolver struct {
	cfg     ResolverConfig
	archive PageArchiver
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewResolver builds a Resolver. archive may be nil.
func NewResolver(cfg ResolverConfig, archive PageArchiver, logger *zap.Logger) *Resolver {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.SearchBase == "" {
		cfg.SearchBase = DefaultSearchBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:     cfg,
		archive: archive,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// SearchURL returns the search page URL for query and a 1-based page number.
func (r *Resolver) SearchURL(query string, page int) string {
	return r.cfg.SearchBase + "?search=" + url.QueryEscape(query) + "&page=" + strconv.Itoa(page)
}

// Resolve walks pages in order and records the first page and absolute index of each target.
// It stops when every target is found, when a page has no cards, or at the page bound.
func (r *Resolver) Resolve(ctx context.Context, page Page, region Region, query string, targets Targets) (Ranks, error) {
	var (
		ranks Ranks
		seen  int
	)
	wanted := targets.All()
	found := make(map[Role]bool, len(wanted))
	logger := r.logger.With(zap.String("region", region.Code), zap.String("query", query))

	for n := 1; n <= r.cfg.MaxPages; n++ {
		if err := ctx.Err(); err != nil {
			return Ranks{}, fmt.Errorf("resolve page %d: %w", n, err)
		}
		doc := page.Load(ctx, r.SearchURL(query, n))
		r.archivePage(ctx, region, query, n, doc.HTML)

		cards, err := extract.Cards(doc.HTML, seen)
		if err != nil {
			return Ranks{}, fmt.Errorf("extract page %d: %w", n, err)
		}
		metrics.ObservePage(region.Code, len(cards) > 0)
		if len(cards) == 0 {
			logger.Info("no result cards, stopping", zap.Int("page", n))
			break
		}

		for _, t := range wanted {
			if found[t.Role] {
				continue
			}
			ok, idx := extract.FindTarget(cards, t.ID)
			if !ok {
				continue
			}
			found[t.Role] = true
			ranks.set(t.Role, RankRecord{Rank: cards[idx].Index + 1, Page: n})
			logger.Info("target located",
				zap.String("role", string(t.Role)),
				zap.String("id", t.ID),
				zap.Int("page", n),
				zap.Int("position", idx+1),
			)
		}
		seen += len(cards)

		if len(found) == len(wanted) {
			break
		}
		if n < r.cfg.MaxPages {
			if err := r.sleep(ctx, r.cfg.PageDelay); err != nil {
				return Ranks{}, fmt.Errorf("page delay: %w", err)
			}
		}
	}
	return ranks, nil
}

func (r *Resolver) archivePage(ctx context.Context, region Region, query string, n int, html string) {
	if r.archive == nil || html == "" {
		return
	}
	if err := r.archive.ArchivePage(ctx, region, query, n, html); err != nil {
		r.logger.Warn("archive search page failed", zap.Int("page", n), zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

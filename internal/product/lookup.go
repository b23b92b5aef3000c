// Package product resolves marketplace product metadata from detail pages.
package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/extract"
	"github.com/JakeFAU/rankwatch/internal/metrics"
	"github.com/JakeFAU/rankwatch/internal/rank"
)

// DefaultBaseURL is the storefront root detail URLs are built from.
const DefaultBaseURL = "https://www.wildberries.ru"

var errEmptyPage = errors.New("detail page is empty")

// Config controls detail lookups.
type Config struct {
	BaseURL string
	// Timeout bounds one lookup, probe and promotion included.
	Timeout time.Duration
}

// Lookup implements rank.DetailLookup with a plain probe that is promoted to a
// browser fetch when the page looks unrendered.
type Lookup struct {
	cfg      Config
	probe    rank.Fetcher
	headless rank.Fetcher
	detector rank.HeadlessDetector
	logger   *zap.Logger
}

var _ rank.DetailLookup = (*Lookup)(nil)

// New builds a Lookup. headless and detector may be nil, which disables promotion.
func New(cfg Config, probe, headless rank.Fetcher, detector rank.HeadlessDetector, logger *zap.Logger) (*Lookup, error) {
	if probe == nil {
		return nil, fmt.Errorf("probe fetcher is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		cfg:      cfg,
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger.Named("product"),
	}, nil
}

// DetailURL returns the detail page of articleID.
func (l *Lookup) DetailURL(articleID string) string {
	return fmt.Sprintf("%s/catalog/%s/detail.aspx", l.cfg.BaseURL, articleID)
}

// Lookup returns parsed product metadata, or a placeholder on any failure.
func (l *Lookup) Lookup(ctx context.Context, articleID string) rank.ProductInfo {
	articleID = strings.TrimSpace(articleID)
	if articleID == "" {
		return rank.PlaceholderProduct(articleID)
	}
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	logger := l.logger.With(zap.String("article_id", articleID))
	html, err := l.fetch(ctx, l.DetailURL(articleID), logger)
	if err != nil {
		logger.Warn("detail fetch failed", zap.Error(err))
		return rank.PlaceholderProduct(articleID)
	}
	fields, err := extract.ParseProduct(html, articleID)
	if err != nil {
		logger.Warn("detail parse failed", zap.Error(err))
		return rank.PlaceholderProduct(articleID)
	}
	if fields.NotFound {
		logger.Info("product not found on marketplace")
	}
	return rank.ProductInfo{
		ID:        articleID,
		Name:      fields.Name,
		ArticleID: articleID,
		Price:     fields.Price,
		Image:     fields.Image,
		Brand:     fields.Brand,
	}
}

func (l *Lookup) fetch(ctx context.Context, url string, logger *zap.Logger) (string, error) {
	resp, probeErr := l.probe.Fetch(ctx, url)
	metrics.ObserveDetailFetch(false, probeErr)
	promote := probeErr != nil || (l.detector != nil && l.detector.ShouldPromote(resp))
	if !promote || l.headless == nil {
		if probeErr != nil {
			return "", fmt.Errorf("probe detail page: %w", probeErr)
		}
		return nonEmpty(resp.Body)
	}

	logger.Debug("promoting detail fetch to browser",
		zap.Int("probe_status", resp.StatusCode),
		zap.Int("probe_bytes", len(resp.Body)),
		zap.NamedError("probe_error", probeErr),
	)
	rendered, err := l.headless.Fetch(ctx, url)
	metrics.ObserveDetailFetch(true, err)
	if err == nil {
		return nonEmpty(rendered.Body)
	}
	if probeErr == nil && extract.HasProductHeader(string(resp.Body)) {
		logger.Warn("browser fetch failed, using probe body", zap.Error(err))
		return string(resp.Body), nil
	}
	return "", fmt.Errorf("render detail page: %w", err)
}

func nonEmpty(body []byte) (string, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", errEmptyPage
	}
	return string(body), nil
}

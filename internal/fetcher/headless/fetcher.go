package headless

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

// PageFetcher renders single URLs with a short-lived browser. It backs the
// promoted path of product detail lookups.
type PageFetcher struct {
	launcher *Launcher
}

var _ rank.Fetcher = (*PageFetcher)(nil)

// NewPageFetcher wraps launcher.
func NewPageFetcher(launcher *Launcher) (*PageFetcher, error) {
	if launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}
	return &PageFetcher{launcher: launcher}, nil
}

// Fetch renders url and returns the captured HTML.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (rank.FetchResponse, error) {
	start := time.Now()
	browser, err := f.launcher.Launch(ctx)
	if err != nil {
		return rank.FetchResponse{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	pg, err := browser.OpenPage(ctx, rank.PageOptions{})
	if err != nil {
		return rank.FetchResponse{}, fmt.Errorf("open page: %w", err)
	}
	defer pg.Close()

	doc := pg.Load(ctx, url)
	if doc.HTML == "" {
		if err := ctx.Err(); err != nil {
			return rank.FetchResponse{}, err
		}
		return rank.FetchResponse{}, fmt.Errorf("render %s: empty document", url)
	}

	status, headers := http.StatusOK, http.Header{}
	if p, ok := pg.(*Page); ok {
		if code, h := p.Status(); code > 0 {
			status, headers = code, h
		}
	}
	return rank.FetchResponse{
		URL:          doc.URL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(doc.HTML),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// Package archive keeps the raw search pages a crawl scanned.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

const queryDigestLen = 16

// Shortener derives the short query digest used in object paths.
type Shortener interface {
	Short(s string, n int) string
}

// Archiver writes pages under <prefix>/<yyyy>/<mm>/<dd>/<query digest>/<region>/page-<n>.html.
type Archiver struct {
	store  rank.BlobStore
	hasher Shortener
	clock  rank.Clock
	prefix string
}

// New builds an Archiver. prefix may be empty.
func New(store rank.BlobStore, hasher Shortener, clock rank.Clock, prefix string) (*Archiver, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("blob store is required")
	case hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	return &Archiver{
		store:  store,
		hasher: hasher,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// ArchivePage implements rank.PageArchiver.
func (a *Archiver) ArchivePage(ctx context.Context, region rank.Region, query string, page int, html string) error {
	p := a.Path(region, query, page)
	if _, err := a.store.PutObject(ctx, p, "text/html; charset=utf-8", strings.NewReader(html)); err != nil {
		return fmt.Errorf("archive %s: %w", p, err)
	}
	return nil
}

// Path returns the object path for a page archived now.
func (a *Archiver) Path(region rank.Region, query string, page int) string {
	now := a.clock.Now()
	digest := a.hasher.Short(strings.ToLower(strings.TrimSpace(query)), queryDigestLen)
	return path.Join(
		a.prefix,
		now.Format("2006/01/02"),
		digest,
		region.Code,
		fmt.Sprintf("page-%d.html", page),
	)
}

package rank

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Document is the best-effort HTML captured after a navigation.
type Document struct {
	URL  string
	HTML string
}

// PageOptions configures a page before its first navigation.
type PageOptions struct {
	// Region, when set, biases the storefront through locality cookies.
	Region *Region
}

// BrowserLauncher starts one browser per crawl.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is exclusively owned by a single crawl.
type Browser interface {
	OpenPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

// Page loads URLs. Load never fails; navigation problems yield a partial or empty document.
type Page interface {
	Load(ctx context.Context, url string) Document
	Close()
}

// DetailLookup resolves product metadata and never fails.
type DetailLookup interface {
	Lookup(ctx context.Context, articleID string) ProductInfo
}

// SnapshotStore appends successful crawls.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) (string, error)
}

// HistoryQuery lists past snapshots, newest first.
type HistoryQuery interface {
	ListSnapshots(ctx context.Context, filter HistoryFilter) ([]Snapshot, error)
}

// HistoryRecorder keeps the most recent results in process.
type HistoryRecorder interface {
	Record(result CrawlResult)
}

// ResultCache reuses results within a calendar day.
type ResultCache interface {
	Get(ctx context.Context, key string) (CrawlResult, bool, error)
	Put(ctx context.Context, key string, result CrawlResult, ttl time.Duration) error
}

// PageArchiver keeps raw search pages for later inspection.
type PageArchiver interface {
	ArchivePage(ctx context.Context, region Region, query string, page int, html string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes snapshot events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FetchResponse is a raw HTTP or rendered fetch of a single URL.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Hasher computes hex digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces snapshot IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RandSource yields uniform integers in [0, n).
type RandSource interface {
	IntN(n int) int
}

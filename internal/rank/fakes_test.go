package rank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// searchPageHTML renders a search page whose cards carry the given article IDs.
func searchPageHTML(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"product-card-list\">")
	for _, id := range ids {
		fmt.Fprintf(&b, `<article class="product-card" data-nm-id="%s"><a href="/catalog/%s/detail.aspx">item</a></article>`, id, id)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

// fillerIDs returns n distinct digit-free IDs so they never contain a test article.
func fillerIDs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%c%c", prefix, 'a'+i/26, 'a'+i%26)
	}
	return out
}

type fakePage struct {
	mu      sync.Mutex
	pages   map[int]string
	loaded  []string
	closed  bool
	blockOn int
}

func newFakePage(pages map[int]string) *fakePage {
	return &fakePage{pages: pages}
}

func (p *fakePage) Load(ctx context.Context, url string) Document {
	p.mu.Lock()
	p.loaded = append(p.loaded, url)
	n := len(p.loaded)
	html := p.pages[n]
	block := p.blockOn
	p.mu.Unlock()
	if block > 0 && n >= block {
		<-ctx.Done()
		return Document{URL: url}
	}
	return Document{URL: url, HTML: html}
}

func (p *fakePage) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePage) loads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loaded...)
}

type fakeBrowser struct {
	page    *fakePage
	openErr error
	mu      sync.Mutex
	opts    []PageOptions
	closed  bool
}

func (b *fakeBrowser) OpenPage(_ context.Context, opts PageOptions) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts = append(b.opts, opts)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
	panics  bool
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	if l.panics {
		panic("launcher exploded")
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

type fakeDetails struct {
	mu     sync.Mutex
	calls  []string
	panics map[string]bool
}

func (d *fakeDetails) Lookup(_ context.Context, id string) ProductInfo {
	d.mu.Lock()
	d.calls = append(d.calls, id)
	explode := d.panics[id]
	d.mu.Unlock()
	if explode {
		panic("detail parser exploded")
	}
	return ProductInfo{ID: id, ArticleID: id, Name: "product " + id, Price: 100, Image: "img", Brand: "brand"}
}

type fakeStore struct {
	mu    sync.Mutex
	saved []Snapshot
	err   error
}

func (s *fakeStore) SaveSnapshot(_ context.Context, snap Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, snap)
	if snap.ID == "" {
		return "generated", nil
	}
	return snap.ID, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []CrawlResult
}

func (r *fakeRecorder) Record(result CrawlResult) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]CrawlResult
	ttls    map[string]time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]CrawlResult{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (CrawlResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return CrawlResult{}, false, c.getErr
	}
	res, ok := c.entries[key]
	return res, ok, nil
}

func (c *fakeCache) Put(_ context.Context, key string, result CrawlResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	c.ttls[key] = ttl
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []any
	topics   []string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("h%d", len(data)), nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{ id string }

func (f fakeIDs) NewID() (string, error) {
	if f.id == "" {
		return "", errors.New("no id")
	}
	return f.id, nil
}

// fixedRand returns the same draw every time.
type fixedRand struct{ v int }

func (r fixedRand) IntN(n int) int {
	if r.v >= n {
		return n - 1
	}
	return r.v
}

type recordingArchiver struct {
	mu    sync.Mutex
	pages []int
}

func (a *recordingArchiver) ArchivePage(_ context.Context, _ Region, _ string, page int, _ string) error {
	a.mu.Lock()
	a.pages = append(a.pages, page)
	a.mu.Unlock()
	return errors.New("archive unavailable")
}

func noSleep(context.Context, time.Duration) error { return nil }

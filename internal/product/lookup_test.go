package product

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rankwatch/internal/extract"
	"github.com/JakeFAU/rankwatch/internal/rank"
)

const detailPage = `<html><body>
<div class="product-page__header"><a class="product-page__brand-link">Acme</a><h1>Кружка</h1></div>
<ins class="price-block__final-price">1 299 ₽</ins>
<div class="slider-content"><img src="//images.wbstatic.net/big/111.jpg"></div>
</body></html>`

type fakeFetcher struct {
	mu   sync.Mutex
	resp rank.FetchResponse
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (rank.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.resp, f.err
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type fakeDetector struct{ promote bool }

func (d fakeDetector) ShouldPromote(rank.FetchResponse) bool { return d.promote }

func newLookup(t *testing.T, probe, headless rank.Fetcher, detector rank.HeadlessDetector) *Lookup {
	t.Helper()
	l, err := New(Config{BaseURL: "https://wb.test/"}, probe, headless, detector, nil)
	require.NoError(t, err)
	return l
}

func TestLookupParsesProbe(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(detailPage)}}
	headless := &fakeFetcher{}
	l := newLookup(t, probe, headless, fakeDetector{})

	info := l.Lookup(context.Background(), " 111 ")
	require.Equal(t, rank.ProductInfo{
		ID:        "111",
		Name:      "Кружка",
		ArticleID: "111",
		Price:     1299,
		Image:     "https://images.wbstatic.net/big/111.jpg",
		Brand:     "Acme",
	}, info)
	require.Equal(t, []string{"https://wb.test/catalog/111/detail.aspx"}, probe.urls)
	require.Zero(t, headless.calls())
}

func TestLookupPromotesToBrowser(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(`<div id="app"></div>`)}}
	headless := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(detailPage), UsedHeadless: true}}
	l := newLookup(t, probe, headless, fakeDetector{promote: true})

	info := l.Lookup(context.Background(), "111")
	require.Equal(t, "Кружка", info.Name)
	require.Equal(t, 1, headless.calls())
}

func TestLookupProbeErrorFallsBackToBrowser(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{err: errors.New("connection reset")}
	headless := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(detailPage)}}
	l := newLookup(t, probe, headless, nil)

	require.Equal(t, "Acme", l.Lookup(context.Background(), "111").Brand)
}

func TestLookupBrowserFailureKeepsRenderedProbe(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(detailPage)}}
	headless := &fakeFetcher{err: errors.New("chrome missing")}
	l := newLookup(t, probe, headless, fakeDetector{promote: true})

	require.Equal(t, "Кружка", l.Lookup(context.Background(), "111").Name)
}

func TestLookupFailuresReturnPlaceholder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		probe    *fakeFetcher
		headless rank.Fetcher
		detector rank.HeadlessDetector
	}{
		{
			name:  "probe error without browser",
			probe: &fakeFetcher{err: errors.New("timeout")},
		},
		{
			name:     "both fail",
			probe:    &fakeFetcher{err: errors.New("timeout")},
			headless: &fakeFetcher{err: errors.New("chrome missing")},
		},
		{
			name:     "shell page and browser failure",
			probe:    &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(`<div id="app"></div>`)}},
			headless: &fakeFetcher{err: errors.New("chrome missing")},
			detector: fakeDetector{promote: true},
		},
		{
			name:  "empty body",
			probe: &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte("  ")}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := newLookup(t, tc.probe, tc.headless, tc.detector)
			require.Equal(t, rank.PlaceholderProduct("42"), l.Lookup(context.Background(), "42"))
		})
	}
}

func TestLookupNotFoundPage(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{resp: rank.FetchResponse{StatusCode: 200, Body: []byte(`<div class="not-found-search">нет</div>`)}}
	l := newLookup(t, probe, nil, nil)

	info := l.Lookup(context.Background(), "42")
	require.Equal(t, extract.NotFoundName, info.Name)
	require.Equal(t, extract.UnknownBrand, info.Brand)
	require.Equal(t, "42", info.ArticleID)
}

func TestLookupBlankID(t *testing.T) {
	t.Parallel()

	probe := &fakeFetcher{}
	l := newLookup(t, probe, nil, nil)
	require.Equal(t, rank.PlaceholderProduct(""), l.Lookup(context.Background(), "  "))
	require.Zero(t, probe.calls())
}

func TestNewRequiresProbe(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, nil, nil)
	require.Error(t, err)

	l, err := New(Config{}, &fakeFetcher{}, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://www.wildberries.ru/catalog/7/detail.aspx", l.DetailURL("7"))
}

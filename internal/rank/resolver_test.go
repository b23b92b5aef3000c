package rank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(maxPages int) *Resolver {
	r := NewResolver(ResolverConfig{MaxPages: maxPages, PageDelay: time.Millisecond, SearchBase: "https://wb.test/search"}, nil, zap.NewNop())
	r.sleep = noSleep
	return r
}

func TestResolverSearchURL(t *testing.T) {
	t.Parallel()

	r := NewResolver(ResolverConfig{}, nil, nil)
	require.Equal(t,
		"https://www.wildberries.ru/catalog/0/search.aspx?search=red+shoes+%26+socks&page=2",
		r.SearchURL("red shoes & socks", 2),
	)
}

func TestResolveFoundOnFirstPage(t *testing.T) {
	t.Parallel()

	ids := append(fillerIDs("a", 4), "111")
	page := newFakePage(map[int]string{1: searchPageHTML(ids...)})

	ranks, err := newTestResolver(3).Resolve(context.Background(), page, DefaultRegions[0], "red shoes", Single{PrimaryID: "111"})
	require.NoError(t, err)
	require.Equal(t, RankRecord{Rank: 5, Page: 1}, ranks.Primary)
	require.Len(t, page.loads(), 1)
}

func TestResolveEarlyExitWhenBothFound(t *testing.T) {
	t.Parallel()

	page := newFakePage(map[int]string{
		1: searchPageHTML("x-aa", "222", "111"),
		2: searchPageHTML("111"),
	})
	ranks, err := newTestResolver(5).Resolve(context.Background(), page, DefaultRegions[0], "q",
		Compared{PrimaryID: "111", ReferenceID: "222"})
	require.NoError(t, err)
	require.Equal(t, RankRecord{Rank: 3, Page: 1}, ranks.Primary)
	require.Equal(t, RankRecord{Rank: 2, Page: 1}, ranks.Reference)
	require.Len(t, page.loads(), 1, "page 2 must not be fetched")
}

func TestResolveAbsoluteIndexAcrossPages(t *testing.T) {
	t.Parallel()

	page2 := append(fillerIDs("b", 4), "111")
	page := newFakePage(map[int]string{
		1: searchPageHTML(fillerIDs("a", 5)...),
		2: searchPageHTML(page2...),
	})
	ranks, err := newTestResolver(3).Resolve(context.Background(), page, DefaultRegions[0], "q", Single{PrimaryID: "111"})
	require.NoError(t, err)
	require.Equal(t, RankRecord{Rank: 10, Page: 2}, ranks.Primary)
	require.Equal(t, 110, Linearize(ranks.Primary.Rank, ranks.Primary.Page))
	require.Len(t, page.loads(), 2)
}

func TestResolveStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	page := newFakePage(map[int]string{
		1: searchPageHTML(fillerIDs("a", 3)...),
		2: `<html><body><div class="not-found-search"></div></body></html>`,
		3: searchPageHTML("111"),
	})
	ranks, err := newTestResolver(5).Resolve(context.Background(), page, DefaultRegions[0], "q", Single{PrimaryID: "111"})
	require.NoError(t, err)
	require.Equal(t, RankRecord{}, ranks.Primary)
	require.Len(t, page.loads(), 2, "no pages after an empty one")
}

func TestResolveNotFoundWithinBound(t *testing.T) {
	t.Parallel()

	page := newFakePage(map[int]string{
		1: searchPageHTML(fillerIDs("a", 2)...),
		2: searchPageHTML(fillerIDs("b", 2)...),
		3: searchPageHTML(fillerIDs("c", 2)...),
		4: searchPageHTML("111"),
	})
	ranks, err := newTestResolver(3).Resolve(context.Background(), page, DefaultRegions[0], "q",
		Compared{PrimaryID: "111", ReferenceID: "222"})
	require.NoError(t, err)
	require.Equal(t, Ranks{}, ranks)
	require.Len(t, page.loads(), 3)
}

func TestResolveKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	page := newFakePage(map[int]string{
		1: searchPageHTML("x-aa", "111"),
		2: searchPageHTML("111", "222"),
	})
	ranks, err := newTestResolver(3).Resolve(context.Background(), page, DefaultRegions[0], "q",
		Compared{PrimaryID: "111", ReferenceID: "222"})
	require.NoError(t, err)
	require.Equal(t, RankRecord{Rank: 2, Page: 1}, ranks.Primary)
	require.Equal(t, RankRecord{Rank: 4, Page: 2}, ranks.Reference)
}

func TestResolveDelaysOnlyWhileSearching(t *testing.T) {
	t.Parallel()

	var delays int
	r := newTestResolver(3)
	r.sleep = func(context.Context, time.Duration) error {
		delays++
		return nil
	}
	page := newFakePage(map[int]string{
		1: searchPageHTML("x-aa"),
		2: searchPageHTML("111"),
	})
	_, err := r.Resolve(context.Background(), page, DefaultRegions[0], "q", Single{PrimaryID: "111"})
	require.NoError(t, err)
	require.Equal(t, 1, delays)
}

func TestResolveCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := newFakePage(nil)
	_, err := newTestResolver(3).Resolve(ctx, page, DefaultRegions[0], "q", Single{PrimaryID: "111"})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, page.loads())
}

func TestResolveArchivesPagesAndIgnoresArchiveErrors(t *testing.T) {
	t.Parallel()

	archive := &recordingArchiver{}
	r := NewResolver(ResolverConfig{MaxPages: 2}, archive, zap.NewNop())
	r.sleep = noSleep
	page := newFakePage(map[int]string{
		1: searchPageHTML("x-aa"),
		2: searchPageHTML("x-bb"),
	})
	_, err := r.Resolve(context.Background(), page, DefaultRegions[0], "q", Single{PrimaryID: "111"})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, archive.pages)
}

package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

func queries(results []rank.CrawlResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Query
	}
	return out
}

func TestRingNewestFirst(t *testing.T) {
	t.Parallel()

	ring := NewRing(3)
	require.Empty(t, ring.Recent())

	ring.Record(rank.CrawlResult{Query: "a"})
	ring.Record(rank.CrawlResult{Query: "b"})
	require.Equal(t, []string{"b", "a"}, queries(ring.Recent()))

	ring.Record(rank.CrawlResult{Query: "c"})
	ring.Record(rank.CrawlResult{Query: "d"})
	require.Equal(t, []string{"d", "c", "b"}, queries(ring.Recent()))
}

func TestRingDefaultCapacity(t *testing.T) {
	t.Parallel()

	ring := NewRing(0)
	require.Equal(t, DefaultCapacity, ring.Cap())
	for i := 0; i < 25; i++ {
		ring.Record(rank.CrawlResult{Query: fmt.Sprint(i)})
	}
	recent := ring.Recent()
	require.Len(t, recent, DefaultCapacity)
	require.Equal(t, "24", recent[0].Query)
	require.Equal(t, "15", recent[DefaultCapacity-1].Query)
}

func TestRingConcurrentRecord(t *testing.T) {
	t.Parallel()

	ring := NewRing(5)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ring.Record(rank.CrawlResult{Query: fmt.Sprint(i)})
			_ = ring.Recent()
		}(i)
	}
	wg.Wait()
	require.Len(t, ring.Recent(), 5)
}

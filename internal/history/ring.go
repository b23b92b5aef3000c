// Package history keeps the most recent crawl results in process.
package history

import (
	"sync"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 10

// Ring is a fixed-size buffer of results; the oldest entry is overwritten first.
type Ring struct {
	mu    sync.Mutex
	items []rank.CrawlResult
	next  int
	full  bool
}

// NewRing allocates a ring holding up to capacity results.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{items: make([]rank.CrawlResult, capacity)}
}

// Record implements rank.HistoryRecorder.
func (r *Ring) Record(result rank.CrawlResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = result
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the stored results, newest first.
func (r *Ring) Recent() []rank.CrawlResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.items)
	}
	out := make([]rank.CrawlResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.items)
}

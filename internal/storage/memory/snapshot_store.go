package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

// ErrDuplicateSnapshot is returned when a snapshot ID is reused.
var ErrDuplicateSnapshot = errors.New("snapshot already exists")

// SnapshotStore provides an append-only in-memory snapshot log for development/testing.
type SnapshotStore struct {
	mu    sync.RWMutex
	log   []rank.Snapshot
	ids   map[string]struct{}
	next  int
	newID func(n int) string
}

// NewSnapshotStore constructs an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		ids:   make(map[string]struct{}),
		newID: sequentialID,
	}
}

// SaveSnapshot appends snap, assigning an ID when it has none.
func (s *SnapshotStore) SaveSnapshot(_ context.Context, snap rank.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.ID == "" {
		s.next++
		snap.ID = s.newID(s.next)
	}
	if _, exists := s.ids[snap.ID]; exists {
		return "", ErrDuplicateSnapshot
	}
	snap.Regions = append([]rank.RegionRanks(nil), snap.Regions...)
	s.ids[snap.ID] = struct{}{}
	s.log = append(s.log, snap)
	return snap.ID, nil
}

// ListSnapshots returns matching snapshots, newest first.
func (s *SnapshotStore) ListSnapshots(_ context.Context, filter rank.HistoryFilter) ([]rank.Snapshot, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rank.Snapshot, 0, filter.Limit)
	for i := len(s.log) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		if !filter.Matches(s.log[i]) {
			continue
		}
		snap := s.log[i]
		snap.Regions = append([]rank.RegionRanks(nil), snap.Regions...)
		out = append(out, snap)
	}
	return out, nil
}

// Ping always succeeds.
func (s *SnapshotStore) Ping(context.Context) error { return nil }

func sequentialID(n int) string {
	return "mem-" + strconv.Itoa(n)
}

package reputation

import (
	"context"
	"sync"
)

// MemorySnapshotStore is an in-memory SnapshotStore for demo/test use.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]*Snapshot // userID → snapshots, oldest first
}

// NewMemorySnapshotStore creates an in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string][]*Snapshot)}
}

func (s *MemorySnapshotStore) Append(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	if snap.Factors != nil {
		cp.Factors = make(map[string]int, len(snap.Factors))
		for k, v := range snap.Factors {
			cp.Factors[k] = v
		}
	}
	s.snapshots[snap.UserID] = append(s.snapshots[snap.UserID], &cp)
	return nil
}

func (s *MemorySnapshotStore) History(ctx context.Context, userID string, limit int) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.snapshots[userID]
	var result []*Snapshot
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		cp := *stored[i]
		result = append(result, &cp)
	}
	return result, nil
}

package store

import (
	"sync"

	"github.com/dshills/flowmesh/graph"
)

// MemStore is an in-memory CheckpointStore.
//
// Designed for testing and short-lived workflows where persistence isn't
// required. Data is lost when the process terminates; it is not suitable
// for distributed deployments. For durability on one node use SQLiteStore;
// for several nodes sharing state, MySQLStore.
type MemStore struct {
	mu    sync.RWMutex
	snaps map[string]graph.Snapshot // runID -> snapshot
}

// NewMemStore creates a new in-memory checkpoint store.
func NewMemStore() *MemStore {
	return &MemStore{
		snaps: make(map[string]graph.Snapshot),
	}
}

func (m *MemStore) Save(runID string, snap graph.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[runID] = snap
	return nil
}

func (m *MemStore) Load(runID string) (graph.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, exists := m.snaps[runID]
	if !exists {
		return graph.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// ListIncomplete returns the run IDs of every snapshot whose Status is
// neither Completed nor Cancelled.
func (m *MemStore) ListIncomplete() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snaps))
	for runID, snap := range m.snaps {
		switch snap.Status {
		case graph.StatusCompleted, graph.StatusCancelled:
			continue
		}
		ids = append(ids, runID)
	}
	return ids, nil
}

func (m *MemStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, runID)
	return nil
}

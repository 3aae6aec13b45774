// Package store provides CheckpointStore implementations for persisting
// workflow snapshots: an in-memory map for tests, a SQLite-backed store for
// single-node deployments, and a MySQL-backed store for multi-node ones.
package store

import (
	"encoding/json"

	"github.com/dshills/flowmesh/graph"
)

// ErrNotFound is graph.ErrNotFound, re-exported for callers that only import
// store.
var ErrNotFound = graph.ErrNotFound

// encodeSnapshot marshals a graph.Snapshot for storage in a single TEXT/BLOB
// column, keeping the SQL schema stable as Snapshot's shape evolves.
func encodeSnapshot(snap graph.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func decodeSnapshot(data []byte) (graph.Snapshot, error) {
	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return graph.Snapshot{}, err
	}
	return snap, nil
}

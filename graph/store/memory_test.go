package store

import (
	"testing"

	"github.com/dshills/flowmesh/graph"
)

func TestMemStoreSaveLoad(t *testing.T) {
	s := NewMemStore()
	snap := graph.Snapshot{
		RunID:   "run-1",
		GraphID: "graph-1",
		Status:  graph.StatusRunning,
		Global:  graph.Bag{"count": 3},
	}

	if err := s.Save("run-1", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.GraphID != "graph-1" || got.Status != graph.StatusRunning {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestMemStoreLoadNotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.Load("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreListIncomplete(t *testing.T) {
	s := NewMemStore()
	_ = s.Save("running", graph.Snapshot{RunID: "running", Status: graph.StatusRunning})
	_ = s.Save("paused", graph.Snapshot{RunID: "paused", Status: graph.StatusPaused})
	_ = s.Save("done", graph.Snapshot{RunID: "done", Status: graph.StatusCompleted})
	_ = s.Save("cancelled", graph.Snapshot{RunID: "cancelled", Status: graph.StatusCancelled})

	ids, err := s.ListIncomplete()
	if err != nil {
		t.Fatalf("ListIncomplete: %v", err)
	}
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	if !set["running"] || !set["paused"] {
		t.Fatalf("expected running and paused in incomplete list, got %v", ids)
	}
	if set["done"] || set["cancelled"] {
		t.Fatalf("completed/cancelled runs should not be incomplete, got %v", ids)
	}
}

func TestMemStoreDelete(t *testing.T) {
	s := NewMemStore()
	_ = s.Save("run-1", graph.Snapshot{RunID: "run-1", Status: graph.StatusRunning})
	if err := s.Delete("run-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("run-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

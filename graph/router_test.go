package graph_test

import (
	"testing"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
)

func newTestGraph(edges ...graph.Edge) *graph.Graph {
	g := &graph.Graph{
		ID: "g",
		Vertices: []graph.VertexDescriptor{
			{ID: "a", Kind: "A"},
			{ID: "b", Kind: "B"},
		},
		Edges: edges,
	}
	if err := g.Validate(); err != nil {
		panic(err)
	}
	return g
}

func TestRouterGuardScopeIncludesGlobals(t *testing.T) {
	g := newTestGraph(graph.Edge{
		ID: "e1", From: "a", To: "b", Enabled: true,
		Guard: `.globals.allow == true`,
	})
	global := graph.NewGlobalState(graph.Bag{"allow": true})
	router := graph.NewRouter(g, eval.NewJQEvaluator(), graph.NewDeadLetterQueue(), global)

	routed := router.Route(graph.Message{
		Kind:           graph.KindComplete,
		SourceVertexID: "a",
		Output:         graph.Bag{},
	})
	if len(routed) != 1 {
		t.Fatalf("expected the guard to pass using globals, got %d routed messages", len(routed))
	}
}

func TestRouterGuardScopeRejectsWhenGlobalsDisallow(t *testing.T) {
	g := newTestGraph(graph.Edge{
		ID: "e1", From: "a", To: "b", Enabled: true,
		Guard: `.globals.allow == true`,
	})
	global := graph.NewGlobalState(graph.Bag{"allow": false})
	router := graph.NewRouter(g, eval.NewJQEvaluator(), graph.NewDeadLetterQueue(), global)

	routed := router.Route(graph.Message{
		Kind:           graph.KindComplete,
		SourceVertexID: "a",
		Output:         graph.Bag{},
	})
	if len(routed) != 0 {
		t.Fatalf("expected the guard to reject, got %d routed messages", len(routed))
	}
}

func TestRouterDerivesCompleteFailCancelUnchangedAndCollapsesOthersToNext(t *testing.T) {
	g := newTestGraph(graph.Edge{ID: "e1", From: "a", To: "b", Enabled: true})
	router := graph.NewRouter(g, eval.NewJQEvaluator(), graph.NewDeadLetterQueue(), graph.NewGlobalState(nil))

	cases := []struct {
		source   graph.Kind
		expected graph.Kind
	}{
		{graph.KindComplete, graph.KindComplete},
		{graph.KindFail, graph.KindFail},
		{graph.KindCancel, graph.KindCancel},
		{graph.KindNext, graph.KindNext},
		{graph.KindStart, graph.KindNext},
	}
	for _, c := range cases {
		routed := router.Route(graph.Message{Kind: c.source, SourceVertexID: "a", Output: graph.Bag{}})
		if len(routed) != 1 {
			t.Fatalf("kind %s: expected one routed message, got %d", c.source, len(routed))
		}
		if routed[0].Message.Kind != c.expected {
			t.Fatalf("kind %s: expected derived kind %s, got %s", c.source, c.expected, routed[0].Message.Kind)
		}
	}
}

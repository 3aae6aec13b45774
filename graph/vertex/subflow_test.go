package vertex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/store"
	"github.com/dshills/flowmesh/graph/vertex"
)

// echoVertex always completes with the default port; used to give test
// graphs a body without depending on a domain task kind.
type echoVertex struct{}

func (echoVertex) Initialize(graph.VertexDescriptor) error { return nil }

func (echoVertex) Execute(_ context.Context, _ graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	return graph.Bag{"seen": input}, graph.Outcome{}, nil
}

func newTestEngine(t *testing.T) (*graph.Engine, *vertex.GraphLoader) {
	t.Helper()
	loader := vertex.NewGraphLoader()
	var eng *graph.Engine
	evaluator := eval.NewJQEvaluator()
	factory := vertex.NewBuiltinFactory(evaluator, func() *graph.Engine { return eng }, loader)
	factory.Register(graph.KindTask, func() graph.Vertex { return echoVertex{} })

	e, err := graph.New(
		graph.WithEvaluator(evaluator),
		graph.WithCheckpointStore(store.NewMemStore()),
		graph.WithFactory(factory),
	)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	eng = e
	return eng, loader
}

func inlineChildGraph() map[string]any {
	return map[string]any{
		"id":   "child",
		"name": "child",
		"vertices": []any{
			map[string]any{"id": "c1", "kind": "Task"},
		},
	}
}

func TestSubflowAppliesInputAndOutputMappings(t *testing.T) {
	eng, loader := newTestEngine(t)

	build := vertex.NewSubflowFactory(func() *graph.Engine { return eng }, loader)
	v := build()

	if err := v.Initialize(graph.VertexDescriptor{ID: "sf1", Kind: graph.KindSubflow, Config: graph.Bag{
		"graph":          inlineChildGraph(),
		"inputMappings":  map[string]any{"orderID": "childOrderID"},
		"outputMappings": map[string]any{"childOrderID": "resultOrderID"},
	}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	out, _, err := v.Execute(context.Background(), graph.Bag{"orderID": "abc-123"}, graph.Bag{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["resultOrderID"] != "abc-123" {
		t.Fatalf("expected mapped output resultOrderID=abc-123, got %v", out["resultOrderID"])
	}
}

func TestSubflowRejectsRecursionPastMaxDepth(t *testing.T) {
	eng, loader := newTestEngine(t)
	build := vertex.NewSubflowFactory(func() *graph.Engine { return eng }, loader)
	v := build()

	if err := v.Initialize(graph.VertexDescriptor{ID: "sf1", Kind: graph.KindSubflow, Config: graph.Bag{
		"graph":             inlineChildGraph(),
		"maxRecursionDepth": float64(0),
	}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, _, err := v.Execute(context.Background(), graph.Bag{}, graph.Bag{})
	if err == nil {
		t.Fatal("expected max recursion depth error")
	}
	if !errors.Is(err, graph.ErrMaxRecursionDepth) {
		t.Fatalf("expected ErrMaxRecursionDepth, got %v", err)
	}
}

package vertex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/vertex"
)

func TestWhileLoopReEvaluatesConditionEachIteration(t *testing.T) {
	build := vertex.NewWhileLoopFactory(eval.NewJQEvaluator())
	v := build()
	if err := v.Initialize(graph.VertexDescriptor{ID: "w1", Kind: graph.KindWhileLoop, Config: graph.Bag{
		"conditionExpr": ".globals.count < 3",
	}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	count := 0
	iterations := 0
	for {
		_, outcome, err := v.Execute(context.Background(), graph.Bag{"count": count}, graph.Bag{})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.More {
			break
		}
		iterations++
		count++
	}

	if iterations != 3 {
		t.Fatalf("expected 3 iterations, got %d", iterations)
	}
}

func TestWhileLoopFailsAfterMaxIterations(t *testing.T) {
	build := vertex.NewWhileLoopFactory(eval.NewJQEvaluator())
	v := build()
	if err := v.Initialize(graph.VertexDescriptor{ID: "w1", Kind: graph.KindWhileLoop, Config: graph.Bag{
		"conditionExpr": "true",
		"maxIterations": float64(2),
	}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var lastErr error
	for i := 0; i < 5; i++ {
		_, outcome, err := v.Execute(context.Background(), graph.Bag{}, graph.Bag{})
		if err != nil {
			lastErr = err
			break
		}
		if !outcome.More {
			t.Fatal("condition never changes; loop should not complete naturally")
		}
	}

	if lastErr == nil {
		t.Fatal("expected max-iterations error")
	}
	if !errors.Is(lastErr, graph.ErrMaxIterationsExceeded) {
		t.Fatalf("expected ErrMaxIterationsExceeded, got %v", lastErr)
	}
}

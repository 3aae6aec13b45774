package eval

import (
	"testing"

	"github.com/dshills/flowmesh/graph"
)

func TestJQEvaluatorEvalBool(t *testing.T) {
	e := NewJQEvaluator()
	scope := graph.Bag{"output": map[string]any{"status": 200}}

	ok, err := e.EvalBool(".output.status == 200", scope)
	if err != nil {
		t.Fatalf("EvalBool: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}

	ok, err = e.EvalBool(".output.status == 500", scope)
	if err != nil {
		t.Fatalf("EvalBool: %v", err)
	}
	if ok {
		t.Fatal("expected false")
	}
}

func TestJQEvaluatorEvalValue(t *testing.T) {
	e := NewJQEvaluator()
	scope := graph.Bag{"input": map[string]any{"name": "ada"}}

	v, err := e.EvalValue(".input.name", scope)
	if err != nil {
		t.Fatalf("EvalValue: %v", err)
	}
	if v != "ada" {
		t.Fatalf("expected ada, got %v", v)
	}
}

func TestJQEvaluatorCachesCompiledQuery(t *testing.T) {
	e := NewJQEvaluator()
	expr := ".input.x"
	scope := graph.Bag{"input": map[string]any{"x": 1}}

	if _, err := e.EvalValue(expr, scope); err != nil {
		t.Fatalf("EvalValue: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected 1 cached query, got %d", len(e.cache))
	}
	if _, err := e.EvalValue(expr, scope); err != nil {
		t.Fatalf("EvalValue: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected cache to stay at 1 entry, got %d", len(e.cache))
	}
}

func TestJQEvaluatorInvalidExpression(t *testing.T) {
	e := NewJQEvaluator()
	if _, err := e.EvalBool("not valid jq ][", graph.Bag{}); err == nil {
		t.Fatal("expected parse error")
	}
}

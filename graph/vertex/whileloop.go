package vertex

import (
	"context"
	"fmt"

	"github.com/dshills/flowmesh/graph"
)

// defaultMaxIterations bounds a WhileLoop that never converges (spec §4.1).
const defaultMaxIterations = 1000

// WhileLoop re-evaluates a text condition before each iteration against the
// current globals and input, re-entering while it holds true. Unlike
// Foreach it has no fixed sequence: the condition, not a count, drives
// termination, bounded by MaxIterations as a safety net. The engine
// creates one WhileLoop instance per vertex per run, so the iteration
// count lives on the struct.
type WhileLoop struct {
	eval          graph.ExpressionEvaluator
	conditionExpr string
	maxIterations int

	iteration int
}

func NewWhileLoopFactory(eval graph.ExpressionEvaluator) func() graph.Vertex {
	return func() graph.Vertex { return &WhileLoop{eval: eval} }
}

func (w *WhileLoop) Initialize(descriptor graph.VertexDescriptor) error {
	cond, ok := descriptor.Config["conditionExpr"].(string)
	if !ok || cond == "" {
		return &graph.EngineError{Message: fmt.Sprintf("whileloop vertex %q missing conditionExpr", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	w.conditionExpr = cond
	w.maxIterations = defaultMaxIterations
	if raw, ok := descriptor.Config["maxIterations"].(float64); ok && raw > 0 {
		w.maxIterations = int(raw)
	}
	return nil
}

func (w *WhileLoop) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.Outcome{}, err
	}

	if w.iteration >= w.maxIterations {
		return nil, graph.Outcome{}, &graph.EngineError{Message: fmt.Sprintf("whileloop exceeded %d iterations", w.maxIterations), Code: "MaxIterationsExceeded", Cause: graph.ErrMaxIterationsExceeded}
	}

	scope := graph.Bag{"globals": global, "input": input}
	cont, err := w.eval.EvalBool(w.conditionExpr, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate whileloop condition: %w", err)
	}
	if !cont {
		return graph.Bag{}, graph.Outcome{Port: ""}, nil
	}

	out := graph.Bag{"IterationIndex": w.iteration}
	w.iteration++
	return out, graph.Outcome{Port: "", More: true}, nil
}

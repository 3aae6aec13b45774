package vertex

import (
	"context"
	"fmt"

	"github.com/dshills/flowmesh/graph"
)

// Foreach evaluates a text expression to a sequence once, then re-enters
// per element (spec §4.1), binding each element under the configured item
// variable name and signaling More until the sequence is exhausted. The
// engine creates one Foreach instance per vertex per run and re-invokes
// Execute in place, so the resolved sequence and cursor live on the struct
// rather than in the message bag.
type Foreach struct {
	eval           graph.ExpressionEvaluator
	collectionExpr string
	itemVar        string

	resolved bool
	items    []any
	cursor   int
}

func NewForeachFactory(eval graph.ExpressionEvaluator) func() graph.Vertex {
	return func() graph.Vertex { return &Foreach{eval: eval} }
}

func (f *Foreach) Initialize(descriptor graph.VertexDescriptor) error {
	expr, ok := descriptor.Config["collectionExpr"].(string)
	if !ok || expr == "" {
		return &graph.EngineError{Message: fmt.Sprintf("foreach vertex %q missing collectionExpr", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	itemVar, _ := descriptor.Config["itemVar"].(string)
	if itemVar == "" {
		itemVar = "item"
	}
	f.collectionExpr = expr
	f.itemVar = itemVar
	return nil
}

func (f *Foreach) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.Outcome{}, err
	}

	if !f.resolved {
		scope := graph.Bag{"globals": global, "input": input}
		v, err := f.eval.EvalValue(f.collectionExpr, scope)
		if err != nil {
			return nil, graph.Outcome{}, fmt.Errorf("evaluate foreach collection: %w", err)
		}
		items, err := toSlice(v)
		if err != nil {
			return nil, graph.Outcome{}, err
		}
		f.items = items
		f.resolved = true
	}

	if f.cursor >= len(f.items) {
		// No elements left: final Complete carries no item.
		return graph.Bag{}, graph.Outcome{Port: ""}, nil
	}

	out := graph.Bag{f.itemVar: f.items[f.cursor], "IterationIndex": f.cursor}
	f.cursor++
	more := f.cursor < len(f.items)
	return out, graph.Outcome{Port: "", More: more}, nil
}

func toSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("foreach collection expression did not produce a sequence, got %T", v)
	}
}

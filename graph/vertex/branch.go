// Package vertex implements the built-in control-flow vertex kinds:
// branch, switch, foreach, while-loop, subflow and container, plus a
// Factory that wires them (and any registered domain kinds) to the engine.
package vertex

import (
	"context"
	"fmt"

	"github.com/dshills/flowmesh/graph"
)

// TrueBranch and FalseBranch are the Branch vertex's two fixed ports (spec §4.1).
const (
	TrueBranch  = "TrueBranch"
	FalseBranch = "FalseBranch"
)

// Branch evaluates a text condition against the global and input bags and
// always completes, choosing TrueBranch or FalseBranch.
type Branch struct {
	eval      graph.ExpressionEvaluator
	condition string
}

// NewBranchFactory returns a constructor closure binding an evaluator, for
// registration with a Factory.
func NewBranchFactory(eval graph.ExpressionEvaluator) func() graph.Vertex {
	return func() graph.Vertex { return &Branch{eval: eval} }
}

func (b *Branch) Initialize(descriptor graph.VertexDescriptor) error {
	cond, ok := descriptor.Config["condition"].(string)
	if !ok || cond == "" {
		return &graph.EngineError{Message: fmt.Sprintf("branch vertex %q missing condition", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	b.condition = cond
	return nil
}

func (b *Branch) Execute(_ context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	scope := graph.Bag{"globals": global, "input": input}
	result, err := b.eval.EvalBool(b.condition, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate branch condition: %w", err)
	}

	port := FalseBranch
	if result {
		port = TrueBranch
	}
	out := graph.Bag{"BranchTaken": port, "ConditionResult": result}
	return out, graph.Outcome{Port: port}, nil
}

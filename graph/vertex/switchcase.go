package vertex

import (
	"context"
	"fmt"

	"github.com/dshills/flowmesh/graph"
)

// DefaultPort is the fixed port a Switch vertex emits on when no configured
// case matches.
const DefaultPort = "Default"

// Switch evaluates a text expression to a value, stringifies it, and
// matches against a configured case-key→port mapping.
type Switch struct {
	eval       graph.ExpressionEvaluator
	expression string
	cases      map[string]string
}

func NewSwitchFactory(eval graph.ExpressionEvaluator) func() graph.Vertex {
	return func() graph.Vertex { return &Switch{eval: eval} }
}

func (s *Switch) Initialize(descriptor graph.VertexDescriptor) error {
	expr, ok := descriptor.Config["expression"].(string)
	if !ok || expr == "" {
		return &graph.EngineError{Message: fmt.Sprintf("switch vertex %q missing expression", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	rawCases, ok := descriptor.Config["cases"].(map[string]any)
	if !ok {
		return &graph.EngineError{Message: fmt.Sprintf("switch vertex %q cases must be a string map", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}

	cases := make(map[string]string, len(rawCases))
	for key, v := range rawCases {
		port, _ := v.(string)
		if port == "" {
			port = key // empty port name means "use the key as the port" (spec §4.1)
		}
		cases[key] = port
	}

	s.expression = expr
	s.cases = cases
	return nil
}

func (s *Switch) Execute(_ context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	scope := graph.Bag{"globals": global, "input": input}
	v, err := s.eval.EvalValue(s.expression, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate switch expression: %w", err)
	}

	key := fmt.Sprintf("%v", v)
	port, matched := s.cases[key]
	if !matched {
		port = DefaultPort
	}

	return graph.Bag{"MatchedCase": key, "Matched": matched}, graph.Outcome{Port: port}, nil
}

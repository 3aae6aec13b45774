package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/codec"
)

// defaultMaxRecursionDepth bounds cyclic subflow inclusion when a vertex
// has no explicit maxRecursionDepth configured (spec §4.1).
const defaultMaxRecursionDepth = 10

type subflowDepthKey struct{}

func withSubflowDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, subflowDepthKey{}, depth)
}

func subflowDepth(ctx context.Context) int {
	if d, ok := ctx.Value(subflowDepthKey{}).(int); ok {
		return d
	}
	return 0
}

// EngineProvider resolves to the engine a Subflow or Container vertex runs
// its child graph on. It is a func, not a *graph.Engine, because the
// factory that builds these vertices must exist before graph.New can
// accept it via WithFactory — the provider closes over a variable the
// caller assigns once the engine is constructed.
type EngineProvider func() *graph.Engine

// Subflow runs a child graph to completion as an isolated workflow: the
// child sees none of the parent's global bag except what InputMappings
// copies in, and the parent sees none of the child's globals except what
// OutputMappings copies back out (spec §4.1).
type Subflow struct {
	engine EngineProvider
	loader *GraphLoader

	path           string
	inline         *graph.Graph
	inputMappings  map[string]string
	outputMappings map[string]string
	maxDepth       int
	timeout        time.Duration
}

// NewSubflowFactory binds the engine provider that runs child graphs and a
// shared loader for external definitions.
func NewSubflowFactory(engine EngineProvider, loader *GraphLoader) func() graph.Vertex {
	return func() graph.Vertex { return &Subflow{engine: engine, loader: loader} }
}

func (s *Subflow) Initialize(descriptor graph.VertexDescriptor) error {
	path, hasPath := descriptor.Config["path"].(string)
	inlineDef, hasInline := descriptor.Config["graph"].(map[string]any)
	if !hasPath && !hasInline {
		return &graph.EngineError{Message: fmt.Sprintf("subflow vertex %q needs a path or inline graph", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}

	if hasInline {
		data, err := json.Marshal(inlineDef)
		if err != nil {
			return &graph.EngineError{Message: fmt.Sprintf("subflow vertex %q inline graph is not serializable", descriptor.ID), Code: "InvalidGraph", Cause: err}
		}
		g, err := (codec.JSONCodec{}).Decode(data)
		if err != nil {
			return &graph.EngineError{Message: fmt.Sprintf("subflow vertex %q inline graph is invalid", descriptor.ID), Code: "InvalidGraph", Cause: err}
		}
		if err := g.Validate(); err != nil {
			return &graph.EngineError{Message: fmt.Sprintf("subflow vertex %q inline graph failed validation", descriptor.ID), Code: "InvalidGraph", Cause: err}
		}
		s.inline = g
	}
	s.path = path

	s.inputMappings = stringMap(descriptor.Config["inputMappings"])
	s.outputMappings = stringMap(descriptor.Config["outputMappings"])

	s.maxDepth = defaultMaxRecursionDepth
	if raw, ok := descriptor.Config["maxRecursionDepth"].(float64); ok && raw >= 0 {
		s.maxDepth = int(raw)
	}
	if raw, ok := descriptor.Config["timeoutSeconds"].(float64); ok && raw > 0 {
		s.timeout = time.Duration(raw) * time.Second
	}
	return nil
}

func stringMap(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (s *Subflow) child() (*graph.Graph, error) {
	if s.inline != nil {
		return s.inline, nil
	}
	return s.loader.Load(s.path)
}

func (s *Subflow) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	depth := subflowDepth(ctx)
	if depth >= s.maxDepth {
		return nil, graph.Outcome{}, &graph.EngineError{Message: "subflow exceeded maximum recursion depth", Code: "MaxRecursionDepth", Cause: graph.ErrMaxRecursionDepth}
	}

	childGraph, err := s.child()
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("resolve subflow definition: %w", err)
	}

	childInitial := graph.Bag{}
	for parentKey, childKey := range s.inputMappings {
		if v, ok := global[parentKey]; ok {
			childInitial[childKey] = v
		} else if v, ok := input[parentKey]; ok {
			childInitial[childKey] = v
		}
	}

	childCtx := withSubflowDepth(ctx, depth+1)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		childCtx, cancel = context.WithTimeout(childCtx, s.timeout)
		defer cancel()
	}

	handle, err := s.engine().Run(childCtx, childGraph, childInitial)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("start subflow: %w", err)
	}

	verdict := handle.Wait()
	if verdict.Status == graph.StatusFailed || verdict.Status == graph.StatusCancelled {
		return nil, graph.Outcome{}, fmt.Errorf("subflow terminated %s: %w", verdict.Status, verdict.Err)
	}

	out := graph.Bag{}
	for childKey, parentKey := range s.outputMappings {
		if v, ok := verdict.Global[childKey]; ok {
			out[parentKey] = v
		}
	}
	return out, graph.Outcome{Port: ""}, nil
}

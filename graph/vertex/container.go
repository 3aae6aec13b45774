package vertex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/codec"
)

// Container wraps a private child graph, validated the same way a
// top-level graph is, and runs it to completion as this vertex's body: its
// own vertices and edges never appear in the parent graph's mailboxes or
// router (spec §4.1). The child's resulting globals become the
// container's output bag. Sequential mode caps the child to one
// in-flight vertex; parallel leaves its own MaxConcurrency in force.
type Container struct {
	engine EngineProvider

	child *graph.Graph
}

func NewContainerFactory(engine EngineProvider) func() graph.Vertex {
	return func() graph.Vertex { return &Container{engine: engine} }
}

func (c *Container) Initialize(descriptor graph.VertexDescriptor) error {
	rawGraph, ok := descriptor.Config["graph"].(map[string]any)
	if !ok {
		return &graph.EngineError{Message: fmt.Sprintf("container vertex %q missing graph", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}

	data, err := json.Marshal(rawGraph)
	if err != nil {
		return &graph.EngineError{Message: fmt.Sprintf("container vertex %q child graph is not serializable", descriptor.ID), Code: "InvalidGraph", Cause: err}
	}
	g, err := (codec.JSONCodec{}).Decode(data)
	if err != nil {
		return &graph.EngineError{Message: fmt.Sprintf("container vertex %q child graph is invalid", descriptor.ID), Code: "InvalidGraph", Cause: err}
	}

	mode, _ := descriptor.Config["mode"].(string)
	if mode == "sequential" {
		g.MaxConcurrency = 1
	}

	if err := g.Validate(); err != nil {
		return &graph.EngineError{Message: fmt.Sprintf("container vertex %q child graph failed validation", descriptor.ID), Code: "InvalidGraph", Cause: err}
	}

	c.child = g
	return nil
}

func (c *Container) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	initial := global.Clone()
	for k, v := range input {
		initial[k] = v
	}

	handle, err := c.engine().Run(ctx, c.child, initial)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("start container: %w", err)
	}

	verdict := handle.Wait()
	if verdict.Status == graph.StatusFailed || verdict.Status == graph.StatusCancelled {
		return nil, graph.Outcome{}, fmt.Errorf("container terminated %s: %w", verdict.Status, verdict.Err)
	}

	return verdict.Global, graph.Outcome{Port: ""}, nil
}

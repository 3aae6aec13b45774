package vertex

import (
	"fmt"

	"github.com/dshills/flowmesh/graph"
)

// BuiltinFactory implements graph.Factory for the built-in control-flow
// vertex kinds, with room to register domain kinds (graph/vertex/llm,
// graph/vertex/httptask, or a caller's own) alongside them.
type BuiltinFactory struct {
	builders map[graph.VertexKind]func() graph.Vertex
}

// NewBuiltinFactory registers Branch, Switch, Foreach, WhileLoop, Subflow
// and Container, sharing one evaluator, engine provider, and subflow graph
// loader across all of them. engine is typically a closure over a
// *graph.Engine variable assigned right after graph.New returns, since the
// factory must be built before the engine that will use it exists:
//
//	var eng *graph.Engine
//	factory := vertex.NewBuiltinFactory(evaluator, func() *graph.Engine { return eng }, loader)
//	eng, err = graph.New(graph.WithFactory(factory), ...)
func NewBuiltinFactory(eval graph.ExpressionEvaluator, engine EngineProvider, loader *GraphLoader) *BuiltinFactory {
	f := &BuiltinFactory{builders: make(map[graph.VertexKind]func() graph.Vertex)}
	f.Register(graph.KindBranch, NewBranchFactory(eval))
	f.Register(graph.KindSwitch, NewSwitchFactory(eval))
	f.Register(graph.KindForeach, NewForeachFactory(eval))
	f.Register(graph.KindWhileLoop, NewWhileLoopFactory(eval))
	f.Register(graph.KindSubflow, NewSubflowFactory(engine, loader))
	f.Register(graph.KindContainer, NewContainerFactory(engine))
	return f
}

// Register adds or overrides the constructor for kind. Used to add domain
// vertex kinds (llm, httptask, a caller's Task implementation) to the same
// factory passed to graph.WithFactory.
func (f *BuiltinFactory) Register(kind graph.VertexKind, build func() graph.Vertex) {
	f.builders[kind] = build
}

// New implements graph.Factory.
func (f *BuiltinFactory) New(kind graph.VertexKind) (graph.Vertex, error) {
	build, ok := f.builders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", graph.ErrUnknownVertexKind, kind)
	}
	return build(), nil
}

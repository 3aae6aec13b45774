package graph

import "fmt"

// Graph is the static, validated definition of a workflow: its vertices,
// edges, and workflow-level configuration (spec §3).
type Graph struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name" yaml:"name"`
	Vertices []VertexDescriptor `json:"vertices" yaml:"vertices"`
	Edges    []Edge           `json:"edges" yaml:"edges"`

	// EntryVertexID, if set, overrides automatic entry detection.
	EntryVertexID string `json:"entryVertexId,omitempty" yaml:"entryVertexId,omitempty"`

	// MaxConcurrency bounds the workflow-wide number of concurrently
	// executing vertex instances (spec §5). When both this and the engine's
	// WithMaxConcurrency limit are positive, the smaller one applies; 0
	// leaves only the engine's limit in force.
	MaxConcurrency int `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`

	// DefaultTimeoutSeconds applies to any vertex that does not declare its
	// own Timeout. 0 falls back to the engine's WithDefaultVertexTimeout.
	DefaultTimeoutSeconds int `json:"defaultTimeoutSeconds,omitempty" yaml:"defaultTimeoutSeconds,omitempty"`

	byID     map[string]*VertexDescriptor
	outEdges map[string][]*Edge
	inEdges  map[string][]*Edge
}

// Validate checks structural well-formedness: duplicate vertex ids, edges
// referencing unknown endpoints, cycles among enabled non-compensation
// edges, and missing vertex configuration. It also builds the adjacency
// indexes used by Router and the entry-detection pass.
func (g *Graph) Validate() error {
	g.byID = make(map[string]*VertexDescriptor, len(g.Vertices))
	for i := range g.Vertices {
		v := &g.Vertices[i]
		if v.ID == "" {
			return &EngineError{Message: "vertex missing id", Code: "InvalidGraph", Cause: ErrDuplicateVertexID}
		}
		if _, exists := g.byID[v.ID]; exists {
			return &EngineError{Message: fmt.Sprintf("duplicate vertex id %q", v.ID), Code: "InvalidGraph", Cause: ErrDuplicateVertexID}
		}
		g.byID[v.ID] = v
	}

	g.outEdges = make(map[string][]*Edge, len(g.Vertices))
	g.inEdges = make(map[string][]*Edge, len(g.Vertices))
	for i := range g.Edges {
		e := &g.Edges[i]
		if _, ok := g.byID[e.From]; !ok {
			return &EngineError{Message: fmt.Sprintf("edge %q references unknown source vertex %q", e.ID, e.From), Code: "InvalidGraph", Cause: ErrUnknownEndpoint}
		}
		if _, ok := g.byID[e.To]; !ok {
			return &EngineError{Message: fmt.Sprintf("edge %q references unknown target vertex %q", e.ID, e.To), Code: "InvalidGraph", Cause: ErrUnknownEndpoint}
		}
		g.outEdges[e.From] = append(g.outEdges[e.From], e)
		g.inEdges[e.To] = append(g.inEdges[e.To], e)
	}

	for i := range g.Vertices {
		v := &g.Vertices[i]
		if err := validateVertexConfig(v); err != nil {
			return err
		}
		if v.FallbackVertexID != "" {
			if _, ok := g.byID[v.FallbackVertexID]; !ok {
				return &EngineError{Message: fmt.Sprintf("vertex %q fallback references unknown vertex %q", v.ID, v.FallbackVertexID), Code: "InvalidGraph", Cause: ErrUnknownEndpoint}
			}
		}
	}

	if g.EntryVertexID != "" {
		if _, ok := g.byID[g.EntryVertexID]; !ok {
			return &EngineError{Message: fmt.Sprintf("explicit entry vertex %q not found", g.EntryVertexID), Code: "InvalidGraph", Cause: ErrUnknownEntryVertex}
		}
	} else if len(g.EntryVertices()) == 0 {
		return &EngineError{Message: "no vertex without incoming edges found", Code: "InvalidGraph", Cause: ErrNoEntryVertex}
	}

	if err := g.detectCycle(); err != nil {
		return err
	}
	return nil
}

// validateVertexConfig performs kind-specific presence checks that do not
// require constructing the concrete Vertex implementation (that happens at
// Factory.New + Initialize time); this only catches obviously missing
// required keys early, per spec §4.1's validation ordering.
func validateVertexConfig(v *VertexDescriptor) error {
	switch v.Kind {
	case KindSwitch:
		if _, ok := v.Config["cases"]; !ok {
			return &EngineError{Message: fmt.Sprintf("switch vertex %q missing cases config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindForeach:
		if _, ok := v.Config["collectionExpr"]; !ok {
			return &EngineError{Message: fmt.Sprintf("foreach vertex %q missing collectionExpr config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindWhileLoop:
		if _, ok := v.Config["conditionExpr"]; !ok {
			return &EngineError{Message: fmt.Sprintf("while-loop vertex %q missing conditionExpr config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindSubflow:
		_, hasInline := v.Config["graph"]
		_, hasPath := v.Config["path"]
		if !hasInline && !hasPath {
			return &EngineError{Message: fmt.Sprintf("subflow vertex %q missing graph or path config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindContainer:
		if _, ok := v.Config["graph"]; !ok {
			return &EngineError{Message: fmt.Sprintf("container vertex %q missing graph config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindBranch:
		if _, ok := v.Config["condition"]; !ok {
			return &EngineError{Message: fmt.Sprintf("branch vertex %q missing condition config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindLLM:
		if _, ok := v.Config["provider"]; !ok {
			return &EngineError{Message: fmt.Sprintf("llm vertex %q missing provider config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
		if _, ok := v.Config["promptExpr"]; !ok {
			return &EngineError{Message: fmt.Sprintf("llm vertex %q missing promptExpr config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	case KindHTTPTask:
		if _, ok := v.Config["urlExpr"]; !ok {
			return &EngineError{Message: fmt.Sprintf("httptask vertex %q missing urlExpr config", v.ID), Code: "InvalidGraph", Cause: ErrMissingConfig}
		}
	}
	return nil
}

// EntryVertices returns EntryVertexID alone when it is set; otherwise every
// vertex with no incoming enabled, non-compensation edge.
func (g *Graph) EntryVertices() []string {
	if g.EntryVertexID != "" {
		return []string{g.EntryVertexID}
	}
	hasIncoming := make(map[string]bool)
	for i := range g.Edges {
		e := &g.Edges[i]
		if !e.Enabled || e.IsCompensation {
			continue
		}
		hasIncoming[e.To] = true
	}
	var out []string
	for i := range g.Vertices {
		if !hasIncoming[g.Vertices[i].ID] {
			out = append(out, g.Vertices[i].ID)
		}
	}
	return out
}

// Vertex returns the descriptor for id, or nil if unknown.
func (g *Graph) Vertex(id string) *VertexDescriptor {
	return g.byID[id]
}

// OutEdges returns the edges leaving vertex id, in declaration order.
func (g *Graph) OutEdges(id string) []*Edge {
	return g.outEdges[id]
}

// detectCycle runs DFS over enabled, non-compensation edges looking for a
// back edge (spec §4.1 "no cycles outside explicit loop/compensation
// constructs").
func (g *Graph) detectCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Vertices))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, e := range g.outEdges[id] {
			if !e.Enabled || e.IsCompensation {
				continue
			}
			switch color[e.To] {
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			case gray:
				return &EngineError{Message: fmt.Sprintf("cycle detected through edge %q -> %q", id, e.To), Code: "InvalidGraph", Cause: ErrCycleDetected}
			}
		}
		color[id] = black
		return nil
	}
	for i := range g.Vertices {
		id := g.Vertices[i].ID
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

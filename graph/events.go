package graph

import "github.com/dshills/flowmesh/graph/emit"

// Emitter is the event-sink seam the engine reports lifecycle events
// through. Aliased from graph/emit so callers configuring an Engine never
// need to import the emit package directly.
type Emitter = emit.Emitter

// Event is the lifecycle notification shape the engine emits.
type Event = emit.Event

func workflowEvent(runID string, kind emit.Kind, meta map[string]any) Event {
	return Event{RunID: runID, Kind: kind, Meta: meta}
}

func vertexEvent(runID, vertexID string, kind emit.Kind, meta map[string]any) Event {
	return Event{RunID: runID, VertexID: vertexID, Kind: kind, Meta: meta}
}

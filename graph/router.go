package graph

import "sort"

// ExpressionEvaluator is the seam through which edge guards and
// control-flow vertex conditions (branch/switch/while) are evaluated. The
// concrete implementation lives in graph/eval (github.com/itchyny/gojq),
// kept out of this package so the engine never depends on a parser (spec
// §6).
type ExpressionEvaluator interface {
	// EvalBool evaluates expr against scope and returns its truthiness.
	EvalBool(expr string, scope Bag) (bool, error)

	// EvalValue evaluates expr and returns the raw result, used by Switch
	// vertices to compute a case key and by Foreach to resolve a collection.
	EvalValue(expr string, scope Bag) (any, error)
}

// Router translates a completed/failed vertex's Message into zero or more
// derived messages enqueued onto downstream mailboxes (spec §4.3). It owns
// no state beyond the graph definition and an evaluator; concurrency safety
// comes from the fact that Route is a pure function of its inputs.
type Router struct {
	graph  *Graph
	eval   ExpressionEvaluator
	dlq    *DeadLetterQueue
	global *GlobalState
}

// NewRouter constructs a Router bound to graph, eval, and the run's shared
// global state (guard expressions read globals alongside the routed
// message's output, spec §4.3).
func NewRouter(g *Graph, eval ExpressionEvaluator, dlq *DeadLetterQueue, global *GlobalState) *Router {
	return &Router{graph: g, eval: eval, dlq: dlq, global: global}
}

// RoutedMessage pairs a derived Message with the mailbox it should be
// enqueued onto.
type RoutedMessage struct {
	TargetVertexID string
	Message        Message
}

// Route evaluates every outgoing edge of msg.SourceVertexID against msg,
// returning the derived messages in priority order (descending Priority,
// then declaration order for ties). A message matching no edge is silently
// dropped — a dead end is not an error (spec §4.3).
func (r *Router) Route(msg Message) []RoutedMessage {
	candidates := r.graph.OutEdges(msg.SourceVertexID)
	type scored struct {
		edge *Edge
		pos  int
	}
	var matched []scored
	for i, e := range candidates {
		if !e.Enabled || e.IsCompensation {
			continue
		}
		if !r.matchesTrigger(e, msg.Kind) {
			continue
		}
		if e.SourcePort != "" && e.SourcePort != msg.SourcePort {
			continue
		}
		if e.Guard != "" {
			scope := r.guardScope(msg)
			ok, err := r.eval.EvalBool(e.Guard, scope)
			if err != nil {
				if r.dlq != nil {
					r.dlq.Add(e.To, msgOnlyEnvelope(msg), "guard-eval-error: "+err.Error(), RealClock{}.Now())
				}
				continue
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, scored{edge: e, pos: i})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].edge.Priority != matched[j].edge.Priority {
			return matched[i].edge.Priority > matched[j].edge.Priority
		}
		return matched[i].pos < matched[j].pos
	})

	out := make([]RoutedMessage, 0, len(matched))
	for _, m := range matched {
		derived := Message{
			Kind:           deriveKind(msg.Kind),
			SourceVertexID: msg.SourceVertexID,
			SourcePort:     msg.SourcePort,
			TargetPort:     m.edge.TargetPort,
			Output:         msg.Output.Clone(),
			Err:            msg.Err,
			IterationIndex: msg.IterationIndex,
			CorrelationID:  msg.CorrelationID,
		}
		out = append(out, RoutedMessage{TargetVertexID: m.edge.To, Message: derived})
	}
	return out
}

func (r *Router) matchesTrigger(e *Edge, kind Kind) bool {
	if len(e.Triggers) == 0 {
		return true
	}
	for _, t := range e.Triggers {
		if t == kind {
			return true
		}
	}
	return false
}

// guardScope builds the evaluation scope exposed to a guard expression: the
// emitting vertex's output bag under "output", the workflow-wide globals
// under "globals", plus err info when present (spec §4.3 step 2).
func (r *Router) guardScope(msg Message) Bag {
	scope := Bag{"output": msg.Output}
	if r.global != nil {
		scope["globals"] = r.global.Snapshot()
	}
	if msg.Err != nil {
		scope["error"] = Bag{"kind": msg.Err.Kind, "message": msg.Err.Message}
	}
	return scope
}

// deriveKind maps a source vertex's terminal event kind to the kind carried
// on the message delivered downstream. Complete/Fail/Cancel pass through
// unchanged so compensation and failure-handling edges can filter on them;
// any other kind collapses to KindNext (spec §4.3 step 3).
func deriveKind(source Kind) Kind {
	switch source {
	case KindComplete, KindFail, KindCancel:
		return source
	default:
		return KindNext
	}
}

// Package httptask adapts graph/tool's HTTPTool into a graph.Vertex kind:
// resolve method, URL, headers and body from the current bag, make the
// request, and write the response back as output.
package httptask

import (
	"context"
	"fmt"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/tool"
)

// HTTPTask is the Task vertex kind that drives tool.HTTPTool from bag state.
type HTTPTask struct {
	eval   graph.ExpressionEvaluator
	client *tool.HTTPTool

	methodExpr string
	urlExpr    string
	bodyExpr   string
	headers    map[string]string
}

func NewFactory(eval graph.ExpressionEvaluator) func() graph.Vertex {
	return func() graph.Vertex { return &HTTPTask{eval: eval, client: tool.NewHTTPTool()} }
}

func (h *HTTPTask) Initialize(descriptor graph.VertexDescriptor) error {
	urlExpr, ok := descriptor.Config["urlExpr"].(string)
	if !ok || urlExpr == "" {
		return &graph.EngineError{Message: fmt.Sprintf("httptask vertex %q missing urlExpr", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	h.urlExpr = urlExpr

	methodExpr, _ := descriptor.Config["methodExpr"].(string)
	if methodExpr == "" {
		methodExpr = `"GET"`
	}
	h.methodExpr = methodExpr

	bodyExpr, _ := descriptor.Config["bodyExpr"].(string)
	h.bodyExpr = bodyExpr

	if raw, ok := descriptor.Config["headers"].(map[string]any); ok {
		headers := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
		h.headers = headers
	}
	return nil
}

func (h *HTTPTask) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.Outcome{}, err
	}

	scope := graph.Bag{"globals": global, "input": input}

	urlVal, err := h.eval.EvalValue(h.urlExpr, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate httptask urlExpr: %w", err)
	}
	url, ok := urlVal.(string)
	if !ok || url == "" {
		return nil, graph.Outcome{}, fmt.Errorf("httptask urlExpr must produce a non-empty string, got %T", urlVal)
	}

	methodVal, err := h.eval.EvalValue(h.methodExpr, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate httptask methodExpr: %w", err)
	}
	method, _ := methodVal.(string)
	if method == "" {
		method = "GET"
	}

	toolInput := map[string]any{"method": method, "url": url}
	if len(h.headers) > 0 {
		headers := make(map[string]any, len(h.headers))
		for k, v := range h.headers {
			headers[k] = v
		}
		toolInput["headers"] = headers
	}
	if h.bodyExpr != "" {
		bodyVal, err := h.eval.EvalValue(h.bodyExpr, scope)
		if err != nil {
			return nil, graph.Outcome{}, fmt.Errorf("evaluate httptask bodyExpr: %w", err)
		}
		if body, ok := bodyVal.(string); ok {
			toolInput["body"] = body
		}
	}

	out, err := h.client.Call(ctx, toolInput)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("http request: %w", err)
	}

	result := graph.Bag{}
	for k, v := range out {
		result[k] = v
	}
	return result, graph.Outcome{Port: ""}, nil
}

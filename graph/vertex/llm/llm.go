// Package llm adapts graph/model's ChatModel providers into a graph.Vertex
// kind: resolve a prompt from the current bag, call the configured LLM, and
// write its response back as output.
package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/model"
	"github.com/dshills/flowmesh/graph/model/anthropic"
	"github.com/dshills/flowmesh/graph/model/google"
	"github.com/dshills/flowmesh/graph/model/openai"
)

// Resolver builds a model.ChatModel for a given provider and model name,
// caching one instance per (provider, model) pair so repeated vertex
// invocations across a run reuse the same client.
type Resolver struct {
	mu      sync.Mutex
	models  map[string]model.ChatModel
	mockSet map[string]model.ChatModel
}

// NewResolver constructs a Resolver that builds anthropic/openai/google
// clients from provider API keys found in the environment
// (ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY). Any other provider
// name resolves to the model registered under that name with SetMock, for
// tests or fixed-response workflow steps.
func NewResolver() *Resolver {
	return &Resolver{
		models:  make(map[string]model.ChatModel),
		mockSet: make(map[string]model.ChatModel),
	}
}

// SetMock registers a model.ChatModel to use for provider name, which must
// not be one of anthropic, openai or google.
func (r *Resolver) SetMock(name string, m model.ChatModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mockSet[name] = m
}

func (r *Resolver) Resolve(provider, modelName string) (model.ChatModel, error) {
	key := provider + "/" + modelName
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[key]; ok {
		return m, nil
	}

	var m model.ChatModel
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("llm provider %q requires ANTHROPIC_API_KEY", provider)
		}
		m = anthropic.NewChatModel(apiKey, modelName)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("llm provider %q requires OPENAI_API_KEY", provider)
		}
		m = openai.NewChatModel(apiKey, modelName)
	case "google":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("llm provider %q requires GOOGLE_API_KEY", provider)
		}
		m = google.NewChatModel(apiKey, modelName)
	default:
		mock, ok := r.mockSet[provider]
		if !ok {
			return nil, fmt.Errorf("unknown llm provider %q", provider)
		}
		m = mock
	}

	r.models[key] = m
	return m, nil
}

// LLM is the Task vertex kind that drives a chat completion from bag state.
type LLM struct {
	eval     graph.ExpressionEvaluator
	resolver *Resolver

	provider        string
	model           string
	promptExpr      string
	systemPromptExp string
}

func NewFactory(eval graph.ExpressionEvaluator, resolver *Resolver) func() graph.Vertex {
	return func() graph.Vertex { return &LLM{eval: eval, resolver: resolver} }
}

func (l *LLM) Initialize(descriptor graph.VertexDescriptor) error {
	provider, _ := descriptor.Config["provider"].(string)
	if provider == "" {
		return &graph.EngineError{Message: fmt.Sprintf("llm vertex %q missing provider", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	modelName, _ := descriptor.Config["model"].(string)
	promptExpr, ok := descriptor.Config["promptExpr"].(string)
	if !ok || promptExpr == "" {
		return &graph.EngineError{Message: fmt.Sprintf("llm vertex %q missing promptExpr", descriptor.ID), Code: "InvalidGraph", Cause: graph.ErrMissingConfig}
	}
	systemPromptExpr, _ := descriptor.Config["systemPromptExpr"].(string)

	l.provider = provider
	l.model = modelName
	l.promptExpr = promptExpr
	l.systemPromptExp = systemPromptExpr
	return nil
}

func (l *LLM) Execute(ctx context.Context, global graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.Outcome{}, err
	}

	scope := graph.Bag{"globals": global, "input": input}
	promptVal, err := l.eval.EvalValue(l.promptExpr, scope)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("evaluate llm promptExpr: %w", err)
	}
	prompt, ok := promptVal.(string)
	if !ok {
		return nil, graph.Outcome{}, fmt.Errorf("llm promptExpr must produce a string, got %T", promptVal)
	}

	var messages []model.Message
	if l.systemPromptExp != "" {
		sysVal, err := l.eval.EvalValue(l.systemPromptExp, scope)
		if err != nil {
			return nil, graph.Outcome{}, fmt.Errorf("evaluate llm systemPromptExpr: %w", err)
		}
		if sys, ok := sysVal.(string); ok && sys != "" {
			messages = append(messages, model.Message{Role: model.RoleSystem, Content: sys})
		}
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	chatModel, err := l.resolver.Resolve(l.provider, l.model)
	if err != nil {
		return nil, graph.Outcome{}, err
	}

	out, err := chatModel.Chat(ctx, messages, nil)
	if err != nil {
		return nil, graph.Outcome{}, fmt.Errorf("llm chat: %w", err)
	}

	result := graph.Bag{"response": out.Text}
	if len(out.ToolCalls) > 0 {
		calls := make([]any, len(out.ToolCalls))
		for i, c := range out.ToolCalls {
			calls[i] = map[string]any{"name": c.Name, "input": c.Input}
		}
		result["toolCalls"] = calls
	}
	return result, graph.Outcome{Port: ""}, nil
}

package llm_test

import (
	"context"
	"testing"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/model"
	"github.com/dshills/flowmesh/graph/vertex/llm"
)

func TestLLMExecuteSendsResolvedPromptAndReturnsResponse(t *testing.T) {
	resolver := llm.NewResolver()
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "Paris"}}}
	resolver.SetMock("test", mock)

	evaluator := eval.NewJQEvaluator()
	build := llm.NewFactory(evaluator, resolver)
	v := build()

	err := v.Initialize(graph.VertexDescriptor{ID: "l1", Kind: graph.KindLLM, Config: graph.Bag{
		"provider":   "test",
		"model":      "mock-1",
		"promptExpr": `.input.question`,
	}})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	out, outcome, err := v.Execute(context.Background(), graph.Bag{}, graph.Bag{"question": "What is the capital of France?"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Port != "" {
		t.Fatalf("expected default port, got %q", outcome.Port)
	}
	if out["response"] != "Paris" {
		t.Fatalf("expected response=Paris, got %v", out["response"])
	}
	if len(mock.Calls) != 1 || mock.Calls[0].Messages[0].Content != "What is the capital of France?" {
		t.Fatalf("expected mock to receive the resolved prompt, got %+v", mock.Calls)
	}
}

func TestLLMInitializeRejectsMissingPromptExpr(t *testing.T) {
	resolver := llm.NewResolver()
	build := llm.NewFactory(eval.NewJQEvaluator(), resolver)
	v := build()

	err := v.Initialize(graph.VertexDescriptor{ID: "l1", Kind: graph.KindLLM, Config: graph.Bag{
		"provider": "test",
	}})
	if err == nil {
		t.Fatal("expected error for missing promptExpr")
	}
}

func TestLLMExecuteFailsForUnknownProvider(t *testing.T) {
	resolver := llm.NewResolver()
	build := llm.NewFactory(eval.NewJQEvaluator(), resolver)
	v := build()

	if err := v.Initialize(graph.VertexDescriptor{ID: "l1", Kind: graph.KindLLM, Config: graph.Bag{
		"provider":   "nope",
		"promptExpr": `"hi"`,
	}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, _, err := v.Execute(context.Background(), graph.Bag{}, graph.Bag{}); err == nil {
		t.Fatal("expected error for unresolvable provider")
	}
}

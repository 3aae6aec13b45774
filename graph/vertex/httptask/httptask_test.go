package httptask_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/vertex/httptask"
)

func TestHTTPTaskExecuteResolvesURLAndReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	build := httptask.NewFactory(eval.NewJQEvaluator())
	v := build()

	err := v.Initialize(graph.VertexDescriptor{ID: "h1", Kind: graph.KindHTTPTask, Config: graph.Bag{
		"urlExpr": `.input.url`,
		"headers": map[string]any{"X-Test": "yes"},
	}})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	out, outcome, err := v.Execute(context.Background(), graph.Bag{}, graph.Bag{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outcome.Port != "" {
		t.Fatalf("expected default port, got %q", outcome.Port)
	}
	if out["status_code"] != 200 {
		t.Fatalf("expected status_code=200, got %v", out["status_code"])
	}
	if out["body"] != "ok" {
		t.Fatalf("expected body=ok, got %v", out["body"])
	}
}

func TestHTTPTaskInitializeRejectsMissingURLExpr(t *testing.T) {
	build := httptask.NewFactory(eval.NewJQEvaluator())
	v := build()

	if err := v.Initialize(graph.VertexDescriptor{ID: "h1", Kind: graph.KindHTTPTask, Config: graph.Bag{}}); err == nil {
		t.Fatal("expected error for missing urlExpr")
	}
}

package graph_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/eval"
	"github.com/dshills/flowmesh/graph/store"
)

// recordingTask appends the order it saw input in; used to assert routing
// and fan-out without needing the full vertex/ control-flow package.
type recordingTask struct {
	mu   *sync.Mutex
	seen *[]graph.Bag
	out  graph.Bag
	err  error
}

func (t *recordingTask) Initialize(graph.VertexDescriptor) error { return nil }

func (t *recordingTask) Execute(_ context.Context, _ graph.Bag, input graph.Bag) (graph.Bag, graph.Outcome, error) {
	t.mu.Lock()
	*t.seen = append(*t.seen, input)
	t.mu.Unlock()
	if t.err != nil {
		return nil, graph.Outcome{}, t.err
	}
	return t.out, graph.Outcome{}, nil
}

// portTask always completes on a fixed port, modeling a Branch-like vertex
// without depending on graph/vertex.
type portTask struct {
	port string
}

func (p *portTask) Initialize(graph.VertexDescriptor) error { return nil }

func (p *portTask) Execute(context.Context, graph.Bag, graph.Bag) (graph.Bag, graph.Outcome, error) {
	return graph.Bag{}, graph.Outcome{Port: p.port}, nil
}

// failTask always fails with a fixed error code.
type failTask struct {
	code string
}

func (f *failTask) Initialize(graph.VertexDescriptor) error { return nil }

func (f *failTask) Execute(context.Context, graph.Bag, graph.Bag) (graph.Bag, graph.Outcome, error) {
	return nil, graph.Outcome{}, &graph.EngineError{Message: "boom", Code: f.code}
}

type staticFactory struct {
	builders map[graph.VertexKind]func() graph.Vertex
}

func (f *staticFactory) New(kind graph.VertexKind) (graph.Vertex, error) {
	build, ok := f.builders[kind]
	if !ok {
		return nil, graph.ErrUnknownVertexKind
	}
	return build(), nil
}

func newEngine(t *testing.T, builders map[graph.VertexKind]func() graph.Vertex, extra ...graph.Option) *graph.Engine {
	t.Helper()
	opts := append([]graph.Option{
		graph.WithEvaluator(eval.NewJQEvaluator()),
		graph.WithCheckpointStore(store.NewMemStore()),
		graph.WithFactory(&staticFactory{builders: builders}),
		graph.WithRunWallClockBudget(5 * time.Second),
	}, extra...)
	e, err := graph.New(opts...)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	return e
}

func waitVerdict(t *testing.T, handle *graph.RunHandle) graph.Verdict {
	t.Helper()
	done := make(chan graph.Verdict, 1)
	go func() { done <- handle.Wait() }()
	select {
	case v := <-done:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run to finish")
		return graph.Verdict{}
	}
}

func TestEngineRunsTwoTaskChainToCompletion(t *testing.T) {
	var mu sync.Mutex
	var seenA, seenB []graph.Bag

	// Each vertex needs its own instance, so two distinct kinds stand in for
	// "task a" and "task b" rather than reusing graph.KindTask for both.
	const kindA graph.VertexKind = "TaskA"
	const kindB graph.VertexKind = "TaskB"

	g := &graph.Graph{
		ID: "chain",
		Vertices: []graph.VertexDescriptor{
			{ID: "a", Kind: kindA},
			{ID: "b", Kind: kindB},
		},
		Edges: []graph.Edge{
			{ID: "a->b", From: "a", To: "b", Enabled: true},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindA: func() graph.Vertex { return &recordingTask{mu: &mu, seen: &seenA, out: graph.Bag{"from": "a"}} },
		kindB: func() graph.Vertex { return &recordingTask{mu: &mu, seen: &seenB, out: graph.Bag{"from": "b"}} },
	})

	handle, err := eng.Run(context.Background(), g, graph.Bag{"seed": true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)

	if verdict.Status != graph.StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %s (err=%v)", verdict.Status, verdict.Err)
	}
	if verdict.Global["from"] != "b" {
		t.Fatalf("expected final global from=b, got %v", verdict.Global["from"])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenA) != 1 {
		t.Fatalf("expected vertex a to execute once, got %d", len(seenA))
	}
	if len(seenB) != 1 {
		t.Fatalf("expected vertex b to execute once, got %d", len(seenB))
	}
	if seenB[0]["from"] != "a" {
		t.Fatalf("expected vertex b to receive a's output, got %v", seenB[0])
	}
}

func TestEnginePortRoutingOnlyFollowsMatchingEdge(t *testing.T) {
	var mu sync.Mutex
	var seenTrue, seenFalse []graph.Bag

	const kindBranch graph.VertexKind = "BranchLike"
	const kindTrue graph.VertexKind = "TrueSink"
	const kindFalse graph.VertexKind = "FalseSink"

	g := &graph.Graph{
		ID: "branch",
		Vertices: []graph.VertexDescriptor{
			{ID: "branch", Kind: kindBranch},
			{ID: "onTrue", Kind: kindTrue},
			{ID: "onFalse", Kind: kindFalse},
		},
		Edges: []graph.Edge{
			{ID: "e1", From: "branch", To: "onTrue", SourcePort: "TrueBranch", Enabled: true},
			{ID: "e2", From: "branch", To: "onFalse", SourcePort: "FalseBranch", Enabled: true},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindBranch: func() graph.Vertex { return &portTask{port: "TrueBranch"} },
		kindTrue:   func() graph.Vertex { return &recordingTask{mu: &mu, seen: &seenTrue, out: graph.Bag{}} },
		kindFalse:  func() graph.Vertex { return &recordingTask{mu: &mu, seen: &seenFalse, out: graph.Bag{}} },
	})

	handle, err := eng.Run(context.Background(), g, graph.Bag{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)
	if verdict.Status != graph.StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %s (err=%v)", verdict.Status, verdict.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenTrue) != 1 {
		t.Fatalf("expected the TrueBranch sink to run once, got %d", len(seenTrue))
	}
	if len(seenFalse) != 0 {
		t.Fatalf("expected the FalseBranch sink to never run, got %d", len(seenFalse))
	}
}

func TestEngineUnretryableFailureFailsTheRun(t *testing.T) {
	const kindFail graph.VertexKind = "AlwaysFails"

	g := &graph.Graph{
		ID: "failing",
		Vertices: []graph.VertexDescriptor{
			{ID: "f", Kind: kindFail},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindFail: func() graph.Vertex { return &failTask{code: "PermanentError"} },
	})

	handle, err := eng.Run(context.Background(), g, graph.Bag{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)

	if verdict.Status != graph.StatusFailed {
		t.Fatalf("expected StatusFailed, got %s", verdict.Status)
	}
	if verdict.Err == nil {
		t.Fatal("expected a non-nil run error")
	}
}

func TestEngineNewRejectsMissingRequiredOptions(t *testing.T) {
	if _, err := graph.New(); err == nil {
		t.Fatal("expected error when no options are supplied")
	}
	if _, err := graph.New(graph.WithEvaluator(eval.NewJQEvaluator())); err == nil {
		t.Fatal("expected error when checkpoint store and factory are missing")
	}
}

// alwaysFailTask always fails with the given code and counts its own
// invocations, letting retry/budget/breaker tests assert on attempt counts.
type alwaysFailTask struct {
	code  string
	calls atomic.Int32
}

func (f *alwaysFailTask) Initialize(graph.VertexDescriptor) error { return nil }

func (f *alwaysFailTask) Execute(context.Context, graph.Bag, graph.Bag) (graph.Bag, graph.Outcome, error) {
	f.calls.Add(1)
	return nil, graph.Outcome{}, &graph.EngineError{Message: "boom", Code: f.code}
}

func TestEngineRetryBudgetPerRunDeadLettersOnceExhausted(t *testing.T) {
	const kindFail graph.VertexKind = "BudgetedFail"
	task := &alwaysFailTask{code: "ExecutionError"}

	g := &graph.Graph{
		ID: "budgeted",
		Vertices: []graph.VertexDescriptor{
			{
				ID:   "f",
				Kind: kindFail,
				Retry: &graph.RetryPolicy{
					Strategy:     graph.RetryFixed,
					MaxAttempts:  10,
					BaseDelay:    time.Millisecond,
					BudgetPerRun: 2,
				},
			},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindFail: func() graph.Vertex { return task },
	})

	handle, err := eng.Run(context.Background(), g, graph.Bag{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)

	if verdict.Status != graph.StatusFailed {
		t.Fatalf("expected StatusFailed once the retry budget is exhausted, got %s", verdict.Status)
	}
	if got := task.calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts (2 retries within budget + 1 that exhausts it), got %d", got)
	}
	found := false
	for _, dl := range verdict.DeadLetters {
		if dl.Reason == "retry-budget-exhausted" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a retry-budget-exhausted dead letter, got %+v", verdict.DeadLetters)
	}
}

func TestEngineCircuitOpenRoutesToFallbackVertex(t *testing.T) {
	const kindFlaky graph.VertexKind = "FlakyWithFallback"
	const kindFallback graph.VertexKind = "FallbackSink"

	flaky := &alwaysFailTask{code: "ExecutionError"}
	var mu sync.Mutex
	var seenFallback []graph.Bag

	g := &graph.Graph{
		ID: "fallback",
		Vertices: []graph.VertexDescriptor{
			{
				ID:               "flaky",
				Kind:             kindFlaky,
				FallbackVertexID: "fallback",
				Retry: &graph.RetryPolicy{
					Strategy:    graph.RetryFixed,
					MaxAttempts: 5,
					BaseDelay:   time.Millisecond,
				},
			},
			{ID: "fallback", Kind: kindFallback},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindFlaky:    func() graph.Vertex { return flaky },
		kindFallback: func() graph.Vertex { return &recordingTask{mu: &mu, seen: &seenFallback, out: graph.Bag{"handled": true}} },
	}, graph.WithBreakerPolicy(kindFlaky, &graph.CircuitBreakerPolicy{
		FailureThreshold:  1,
		MinimumThroughput: 1,
		OpenDuration:      time.Minute,
		HalfOpenSuccesses: 1,
	}))

	handle, err := eng.Run(context.Background(), g, graph.Bag{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)

	if verdict.Status != graph.StatusCompleted {
		t.Fatalf("expected StatusCompleted once the fallback vertex handles the open circuit, got %s (err=%v)", verdict.Status, verdict.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seenFallback) != 1 {
		t.Fatalf("expected the fallback vertex to run exactly once, got %d", len(seenFallback))
	}
}

func TestEnginePerKindGateSerializesSharedKindName(t *testing.T) {
	const kindLimited graph.VertexKind = "Limited"

	var concurrent atomic.Int32
	var peak atomic.Int32
	makeTask := func() graph.Vertex {
		return &blockingTask{concurrent: &concurrent, peak: &peak, hold: 30 * time.Millisecond}
	}

	g := &graph.Graph{
		ID: "kindgate",
		Vertices: []graph.VertexDescriptor{
			{ID: "v1", Kind: kindLimited, Name: "shared", MaxConcurrentExecutions: 1},
			{ID: "v2", Kind: kindLimited, Name: "shared", MaxConcurrentExecutions: 1},
		},
	}

	eng := newEngine(t, map[graph.VertexKind]func() graph.Vertex{
		kindLimited: makeTask,
	}, graph.WithMaxConcurrency(8))

	handle, err := eng.Run(context.Background(), g, graph.Bag{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	verdict := waitVerdict(t, handle)
	if verdict.Status != graph.StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %s (err=%v)", verdict.Status, verdict.Err)
	}

	if got := peak.Load(); got > 1 {
		t.Fatalf("expected the per-kind gate to serialize vertices sharing (kind, name), but saw %d concurrent executions", got)
	}
}

// blockingTask holds Execute open for hold, tracking the peak number of
// concurrent callers observed across every instance sharing the counters.
type blockingTask struct {
	concurrent *atomic.Int32
	peak       *atomic.Int32
	hold       time.Duration
}

func (b *blockingTask) Initialize(graph.VertexDescriptor) error { return nil }

func (b *blockingTask) Execute(context.Context, graph.Bag, graph.Bag) (graph.Bag, graph.Outcome, error) {
	cur := b.concurrent.Add(1)
	defer b.concurrent.Add(-1)
	for {
		p := b.peak.Load()
		if cur <= p || b.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(b.hold)
	return graph.Bag{}, graph.Outcome{}, nil
}

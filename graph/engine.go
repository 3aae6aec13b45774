package graph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Verdict is the terminal outcome of one workflow run.
type Verdict struct {
	Status      WorkflowStatus
	Global      Bag
	Err         error
	DeadLetters []DeadLetterEntry
}

// Engine drives every reachable vertex of a Graph to a terminal state: one
// worker goroutine per vertex leases from that vertex's mailbox, runs its
// Vertex implementation under the workflow's admission gate and retry/
// breaker policies, and hands the result to the Router for onward delivery.
type Engine struct {
	cfg *engineConfig
}

// New validates opts and constructs an Engine. WithEvaluator,
// WithCheckpointStore, and WithFactory are required.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.evaluator == nil {
		return nil, &EngineError{Message: "WithEvaluator is required", Code: "InvalidOption"}
	}
	if cfg.store == nil {
		return nil, &EngineError{Message: "WithCheckpointStore is required", Code: "InvalidOption"}
	}
	if cfg.factory == nil {
		return nil, &EngineError{Message: "WithFactory is required", Code: "InvalidOption"}
	}
	if cfg.emitter == nil {
		cfg.emitter = nullEmitter{}
	}
	return &Engine{cfg: cfg}, nil
}

type nullEmitter struct{}

func (nullEmitter) Emit(Event)                               {}
func (nullEmitter) EmitBatch(context.Context, []Event) error { return nil }
func (nullEmitter) Flush(context.Context) error              { return nil }

// vertexInstance bundles one vertex's runtime state: the constructed Vertex,
// its mailbox, and its kind/retry/breaker configuration.
type vertexInstance struct {
	descriptor VertexDescriptor
	vertex     Vertex
	mailbox    *Mailbox
	retry      *RetryPolicy

	mu              sync.Mutex
	iterationSeen   int
	retryBudgetUsed int
}

// kindGateKey discriminates the per-vertex-type gate (spec §4.4 step 3):
// every vertex sharing a (Kind, Name) pair contends for the same slot pool.
func kindGateKey(kind VertexKind, name string) string {
	return string(kind) + "|" + name
}

// run holds all per-execution state for one in-flight workflow instance.
type run struct {
	id    string
	graph *Graph
	eng   *Engine

	global   *GlobalState
	router   *Router
	dlq      *DeadLetterQueue
	breakers *BreakerRegistry
	gate     *PriorityGate
	// kindGates holds one PriorityGate per (Kind, Name) pair that declares a
	// MaxConcurrentExecutions cap; absent entries mean no per-kind cap.
	kindGates map[string]*PriorityGate

	instances map[string]*vertexInstance

	ctx        context.Context
	cancelFunc context.CancelFunc
	paused     atomic.Bool
	resumeCh   chan struct{}
	resumeMu   sync.Mutex

	inflight sync.WaitGroup
	active   atomic.Int64

	failure atomic.Pointer[ErrorDescriptor]
	done    chan struct{}
	status  atomic.Value // WorkflowStatus
}

// RunHandle lets a caller observe and control one in-flight workflow run.
type RunHandle struct {
	r *run
}

// Wait blocks until the run reaches a terminal status.
func (h *RunHandle) Wait() Verdict {
	<-h.r.done
	status := h.r.status.Load().(WorkflowStatus)
	var err error
	if fd := h.r.failure.Load(); fd != nil {
		err = fd
	}
	return Verdict{
		Status:      status,
		Global:      h.r.global.Snapshot(),
		Err:         err,
		DeadLetters: h.r.dlq.Entries(),
	}
}

// Pause asks every worker to stop leasing new work after finishing its
// current envelope. Returns an error if the engine was built with
// WithAllowPause(false).
func (h *RunHandle) Pause() error {
	if !h.r.eng.cfg.allowPause {
		return &EngineError{Message: "pause is disabled for this engine", Code: "PauseDisabled"}
	}
	h.r.paused.Store(true)
	h.r.setStatus(StatusPaused)
	return nil
}

// Resume releases a paused run's workers.
func (h *RunHandle) Resume() {
	h.r.resumeMu.Lock()
	defer h.r.resumeMu.Unlock()
	if !h.r.paused.CompareAndSwap(true, false) {
		return
	}
	h.r.setStatus(StatusRunning)
	close(h.r.resumeCh)
	h.r.resumeCh = make(chan struct{})
}

// Cancel triggers hierarchical cancellation: every worker's blocking
// operations observe ctx.Done and every mailbox drains.
func (h *RunHandle) Cancel() {
	h.r.cancelFunc()
}

func (r *run) setStatus(s WorkflowStatus) {
	r.status.Store(s)
}

func (r *run) currentResumeCh() chan struct{} {
	r.resumeMu.Lock()
	defer r.resumeMu.Unlock()
	return r.resumeCh
}

// Run constructs runtime instances for every vertex in g, enqueues the
// Start trigger on every entry vertex, and returns a handle once workers
// are launched. Run itself does not block; use RunHandle.Wait for the
// terminal Verdict.
func (e *Engine) Run(ctx context.Context, g *Graph, initial Bag) (*RunHandle, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	if e.cfg.runWallClockBudget > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, e.cfg.runWallClockBudget)
	}

	gateLimit := e.cfg.maxConcurrency
	if g.MaxConcurrency > 0 && (gateLimit <= 0 || g.MaxConcurrency < gateLimit) {
		gateLimit = g.MaxConcurrency
	}

	r := &run{
		id:         runID,
		graph:      g,
		eng:        e,
		global:     NewGlobalState(initial),
		dlq:        NewDeadLetterQueue(),
		gate:       NewPriorityGate(gateLimit),
		kindGates:  make(map[string]*PriorityGate),
		breakers:   NewBreakerRegistry(e.cfg.breakerPolicies),
		instances:  make(map[string]*vertexInstance, len(g.Vertices)),
		ctx:        runCtx,
		cancelFunc: cancel,
		resumeCh:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	r.status.Store(StatusRunning)
	r.router = NewRouter(g, e.cfg.evaluator, r.dlq, r.global)

	for i := range g.Vertices {
		desc := g.Vertices[i]
		v, err := e.cfg.factory.New(desc.Kind)
		if err != nil {
			cancel()
			return nil, &EngineError{Message: "constructing vertex " + desc.ID, Code: "FactoryError", Cause: err}
		}
		if err := v.Initialize(desc); err != nil {
			cancel()
			return nil, &EngineError{Message: "initializing vertex " + desc.ID, Code: "InitError", Cause: err}
		}
		retry := desc.Retry
		if retry == nil {
			retry = e.cfg.defaultRetryPolicy
		}
		inst := &vertexInstance{
			descriptor: desc,
			vertex:     v,
			mailbox:    NewMailbox(desc.ID, desc.MailboxCapacity, e.cfg.clock, retry, r.dlq),
			retry:      retry,
		}
		r.instances[desc.ID] = inst

		if desc.MaxConcurrentExecutions > 0 {
			key := kindGateKey(desc.Kind, desc.Name)
			if _, ok := r.kindGates[key]; !ok {
				r.kindGates[key] = NewPriorityGate(desc.MaxConcurrentExecutions)
			}
		}
	}

	e.cfg.emitter.Emit(workflowEvent(runID, WorkflowStarted, nil))

	correlationID := uuid.NewString()
	for _, entry := range g.EntryVertices() {
		inst := r.instances[entry]
		inst.mailbox.Enqueue(StartMessage(correlationID))
	}

	for _, inst := range r.instances {
		r.inflight.Add(1)
		go r.workerLoop(inst)
	}

	go r.awaitCompletion()

	return &RunHandle{r: r}, nil
}

// awaitCompletion blocks until every mailbox is empty and no vertex is
// executing (quiescence), or the run is cancelled/fails, then finalizes the
// terminal status and closes done.
func (r *run) awaitCompletion() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.finish(StatusCancelled, nil)
			return
		case <-ticker.C:
			if fd := r.failure.Load(); fd != nil {
				r.finish(StatusFailed, fd)
				return
			}
			if r.quiescent() {
				r.finish(StatusCompleted, nil)
				return
			}
		}
	}
}

func (r *run) quiescent() bool {
	if r.active.Load() > 0 {
		return false
	}
	for _, inst := range r.instances {
		if inst.mailbox.PendingCount() > 0 {
			return false
		}
	}
	return true
}

func (r *run) finish(status WorkflowStatus, errDesc *ErrorDescriptor) {
	r.cancelFunc()
	for _, inst := range r.instances {
		inst.mailbox.Drain()
	}
	r.inflight.Wait()
	r.setStatus(status)

	kind := WorkflowCompleted
	switch status {
	case StatusFailed:
		kind = WorkflowFailed
		r.runCompensation()
	case StatusCancelled:
		kind = WorkflowCancelled
	}
	r.eng.cfg.emitter.Emit(workflowEvent(r.id, kind, nil))
	close(r.done)
}

// runCompensation walks every edge flagged IsCompensation in reverse
// declaration order, invoking each target vertex once with the current
// global bag and an empty input bag, best-effort (errors become dead-letter entries, not raised).
func (r *run) runCompensation() {
	for i := len(r.graph.Edges) - 1; i >= 0; i-- {
		e := r.graph.Edges[i]
		if !e.IsCompensation || !e.Enabled {
			continue
		}
		inst, ok := r.instances[e.To]
		if !ok {
			continue
		}
		out, _, err := inst.vertex.Execute(context.Background(), r.global.Snapshot(), Bag{})
		if err != nil {
			r.dlq.Add(e.To, Envelope{}, "compensation-error: "+err.Error(), r.eng.cfg.clock.Now())
			continue
		}
		r.global.Merge(out)
	}
}

// workerLoop is the single goroutine driving one vertex's mailbox to
// exhaustion for the lifetime of the run.
func (r *run) workerLoop(inst *vertexInstance) {
	defer r.inflight.Done()
	for {
		if r.ctx.Err() != nil {
			return
		}
		if r.paused.Load() {
			select {
			case <-r.currentResumeCh():
			case <-r.ctx.Done():
				return
			}
			continue
		}

		lease, ok := inst.mailbox.Lease(r.ctx, 100*time.Millisecond)
		if !ok {
			if r.ctx.Err() != nil {
				return
			}
			continue
		}

		r.process(inst, lease)
	}
}

// process runs one admitted envelope through the gate, breaker, and retry
// machinery, then routes the outcome.
func (r *run) process(inst *vertexInstance, lease LeaseHandle) {
	if !r.gate.Acquire(r.ctx, inst.descriptor.Priority) {
		inst.mailbox.Requeue(lease.LeaseID, "gate-cancelled")
		return
	}

	// Workflow-wide gate first, per-kind gate second; released in reverse
	// (spec §4.4 step 3, §4.5).
	kindGate := r.kindGates[kindGateKey(inst.descriptor.Kind, inst.descriptor.Name)]
	if kindGate != nil && !kindGate.Acquire(r.ctx, inst.descriptor.Priority) {
		r.gate.Release()
		inst.mailbox.Requeue(lease.LeaseID, "gate-cancelled")
		return
	}
	defer func() {
		if kindGate != nil {
			kindGate.Release()
		}
		r.gate.Release()
	}()

	r.active.Add(1)
	defer r.active.Add(-1)
	if r.eng.cfg.metrics != nil {
		r.eng.cfg.metrics.SetInflightVertices(int(r.active.Load()))
	}

	msg := lease.Envelope.Message
	r.eng.cfg.emitter.Emit(vertexEvent(r.id, inst.descriptor.ID, VertexStarted, map[string]any{"kind": string(msg.Kind)}))
	start := r.eng.cfg.clock.Now()

	out, outcome, execErr := r.execute(inst, msg)

	latency := r.eng.cfg.clock.Now().Sub(start)
	if r.eng.cfg.metrics != nil {
		status := "success"
		if execErr != nil {
			status = "error"
		}
		r.eng.cfg.metrics.RecordVertexLatency(r.id, inst.descriptor.ID, latency, status)
	}

	if execErr != nil {
		r.handleFailure(inst, lease, msg, execErr)
		return
	}

	iterMsg := msg
	for outcome.More {
		// Foreach/WhileLoop: each iteration's output is routed downstream as
		// a Next message before the vertex is re-entered for the next one
		// (spec: "emits a Next event per element/iteration, then a final
		// Complete").
		r.global.Merge(out)
		r.deliver(Message{
			Kind:           KindNext,
			SourceVertexID: inst.descriptor.ID,
			SourcePort:     outcome.Port,
			Output:         out,
			IterationIndex: iterMsg.IterationIndex,
			CorrelationID:  msg.CorrelationID,
		})

		inst.mu.Lock()
		inst.iterationSeen++
		iter := inst.iterationSeen
		inst.mu.Unlock()
		iterMsg.IterationIndex = iter
		out, outcome, execErr = r.execute(inst, iterMsg)
		if execErr != nil {
			r.handleFailure(inst, lease, msg, execErr)
			return
		}
	}

	inst.mailbox.Acknowledge(lease.LeaseID)
	r.global.Merge(out)

	r.eng.cfg.emitter.Emit(vertexEvent(r.id, inst.descriptor.ID, VertexCompleted, map[string]any{
		"duration_ms": latency.Milliseconds(),
		"port":        outcome.Port,
	}))

	completion := Message{
		Kind:           KindComplete,
		SourceVertexID: inst.descriptor.ID,
		SourcePort:     outcome.Port,
		Output:         out,
		CorrelationID:  msg.CorrelationID,
	}
	r.deliver(completion)
}

func (r *run) execute(inst *vertexInstance, msg Message) (Bag, Outcome, error) {
	execCtx := r.ctx
	timeout := inst.descriptor.Timeout
	if timeout == 0 {
		timeout = r.graph.DefaultTimeoutSeconds
	}
	if timeout == 0 {
		timeout = int(r.eng.cfg.defaultVertexTimeout / time.Second)
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(execCtx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	global := r.global.Snapshot()
	result, err := r.breakers.Execute(inst.descriptor.Kind, func() (any, error) {
		out, outcome, err := inst.vertex.Execute(execCtx, global, msg.Output)
		if err != nil {
			return nil, err
		}
		return [2]any{out, outcome}, nil
	})
	if err != nil {
		return nil, Outcome{}, err
	}
	pair := result.([2]any)
	return pair[0].(Bag), pair[1].(Outcome), nil
}

func (r *run) handleFailure(inst *vertexInstance, lease LeaseHandle, msg Message, execErr error) {
	code := "ExecutionError"
	if ee, ok := execErr.(*EngineError); ok {
		code = ee.Code
	}

	// Circuit open: route directly to the configured fallback vertex instead
	// of the normal retry/fail path (spec §4.4: "route to the fallback
	// vertex id if configured; otherwise produce a Fail event").
	if code == "CircuitOpen" && inst.descriptor.FallbackVertexID != "" {
		inst.mailbox.Acknowledge(lease.LeaseID)
		r.eng.cfg.emitter.Emit(vertexEvent(r.id, inst.descriptor.ID, VertexFailed, map[string]any{
			"error":    execErr.Error(),
			"fallback": inst.descriptor.FallbackVertexID,
		}))
		r.deliverTo(inst.descriptor.FallbackVertexID, Message{
			Kind:           KindStart,
			SourceVertexID: inst.descriptor.ID,
			Output:         msg.Output,
			CorrelationID:  msg.CorrelationID,
		})
		return
	}

	retryable := inst.retry.Retryable(code)
	budgetExhausted := false
	if retryable && inst.retry.BudgetPerRun > 0 {
		inst.mu.Lock()
		if inst.retryBudgetUsed >= inst.retry.BudgetPerRun {
			retryable = false
			budgetExhausted = true
		}
		inst.mu.Unlock()
	}

	switch {
	case budgetExhausted:
		inst.mailbox.Acknowledge(lease.LeaseID)
		r.dlq.Add(inst.descriptor.ID, lease.Envelope, "retry-budget-exhausted", r.eng.cfg.clock.Now())
		if r.eng.cfg.metrics != nil {
			r.eng.cfg.metrics.IncrementDeadLetters(r.id, inst.descriptor.ID, "retry-budget-exhausted")
		}
	case retryable:
		inst.mu.Lock()
		inst.retryBudgetUsed++
		inst.mu.Unlock()
		outcome := inst.mailbox.Requeue(lease.LeaseID, execErr.Error())
		if outcome == Requeued {
			if r.eng.cfg.metrics != nil {
				r.eng.cfg.metrics.IncrementRetries(r.id, inst.descriptor.ID, code)
			}
			return
		}
		if r.eng.cfg.metrics != nil {
			r.eng.cfg.metrics.IncrementDeadLetters(r.id, inst.descriptor.ID, "retries-exhausted")
		}
	default:
		inst.mailbox.Acknowledge(lease.LeaseID)
	}

	r.eng.cfg.emitter.Emit(vertexEvent(r.id, inst.descriptor.ID, VertexFailed, map[string]any{"error": execErr.Error()}))

	desc := &ErrorDescriptor{Kind: code, Message: execErr.Error(), Cause: execErr}
	failMsg := Message{
		Kind:           KindFail,
		SourceVertexID: inst.descriptor.ID,
		Output:         msg.Output,
		Err:            desc,
		CorrelationID:  msg.CorrelationID,
	}

	routed := r.router.Route(failMsg)
	if len(routed) == 0 {
		// No failure-handling edge claims this: the run itself fails.
		r.failure.CompareAndSwap(nil, desc)
		return
	}
	for _, rm := range routed {
		r.deliverTo(rm.TargetVertexID, rm.Message)
	}
}

// deliver routes msg through the Router and enqueues every derived message.
func (r *run) deliver(msg Message) {
	for _, rm := range r.router.Route(msg) {
		r.deliverTo(rm.TargetVertexID, rm.Message)
	}
}

func (r *run) deliverTo(vertexID string, msg Message) {
	inst, ok := r.instances[vertexID]
	if !ok {
		return
	}
	inst.mailbox.Enqueue(msg)
	if r.eng.cfg.metrics != nil {
		r.eng.cfg.metrics.SetMailboxDepth(r.id, vertexID, inst.mailbox.PendingCount())
	}
}

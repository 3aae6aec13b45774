package graph

import "time"

// WorkflowStatus is the run-level lifecycle state of one workflow instance.
type WorkflowStatus string

const (
	StatusRunning   WorkflowStatus = "Running"
	StatusPaused    WorkflowStatus = "Paused"
	StatusCompleted WorkflowStatus = "Completed"
	StatusFailed    WorkflowStatus = "Failed"
	StatusCancelled WorkflowStatus = "Cancelled"
)

// MailboxSnapshot captures one vertex's mailbox contents for persistence.
type MailboxSnapshot struct {
	VertexID  string     `json:"vertex_id"`
	Envelopes []Envelope `json:"envelopes"`
}

// VertexInstanceSnapshot captures one vertex instance's retry and breaker
// bookkeeping, independent of its mailbox contents.
type VertexInstanceSnapshot struct {
	VertexID      string `json:"vertex_id"`
	RetryBudget   int    `json:"retry_budget_used"`
	BreakerState  string `json:"breaker_state"`
	IterationSeen int    `json:"iteration_seen,omitempty"` // Foreach/WhileLoop cursor
}

// Snapshot is a durable, point-in-time capture of a running workflow
// instance: enough to resume every mailbox, every vertex's retry/breaker
// bookkeeping, and the shared global bag (spec §6).
type Snapshot struct {
	RunID     string         `json:"run_id"`
	GraphID   string         `json:"graph_id"`
	Status    WorkflowStatus `json:"status"`
	Global    Bag            `json:"global"`
	Mailboxes []MailboxSnapshot         `json:"mailboxes"`
	Vertices  []VertexInstanceSnapshot  `json:"vertices"`
	DeadLetters []DeadLetterEntry       `json:"dead_letters,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CheckpointStore is the durable-storage seam (spec §6). Implementations
// live in graph/store: an in-memory map for tests, a SQLite-backed store
// (modernc.org/sqlite) and a MySQL-backed store (github.com/go-sql-driver/mysql)
// for production.
type CheckpointStore interface {
	// Save persists snap, overwriting any prior snapshot for the same RunID.
	Save(runID string, snap Snapshot) error

	// Load retrieves the most recent snapshot for runID. Returns ErrNotFound
	// if none exists.
	Load(runID string) (Snapshot, error)

	// ListIncomplete returns the run ids of every snapshot whose Status is
	// Running or Paused, for crash-recovery sweep on startup.
	ListIncomplete() ([]string, error)

	// Delete removes the snapshot for runID, used once a run reaches a
	// terminal status and its retention window has passed.
	Delete(runID string) error
}

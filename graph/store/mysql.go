package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/flowmesh/graph"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed CheckpointStore.
//
// Designed for production deployments with multiple engine workers sharing
// durable run state: long-running workflows that must survive process
// restarts, and audit trails over dead-lettered and completed runs.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a connection pool against dsn and migrates its schema.
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params]
// Never hardcode credentials; read the DSN from the environment.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_snapshots (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			graph_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			snapshot JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	_, err := m.db.ExecContext(ctx, schema)
	return err
}

func (m *MySQLStore) Save(runID string, snap graph.Snapshot) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO workflow_snapshots (run_id, graph_id, status, snapshot)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			graph_id = VALUES(graph_id),
			status = VALUES(status),
			snapshot = VALUES(snapshot)
	`
	_, err = m.db.ExecContext(context.Background(), query, runID, snap.GraphID, string(snap.Status), data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (m *MySQLStore) Load(runID string) (graph.Snapshot, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return graph.Snapshot{}, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	var raw []byte
	err := m.db.QueryRowContext(context.Background(),
		"SELECT snapshot FROM workflow_snapshots WHERE run_id = ?", runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return graph.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (m *MySQLStore) ListIncomplete() ([]string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	rows, err := m.db.QueryContext(context.Background(),
		"SELECT run_id FROM workflow_snapshots WHERE status NOT IN (?, ?)",
		string(graph.StatusCompleted), string(graph.StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("list incomplete: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (m *MySQLStore) Delete(runID string) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	_, err := m.db.ExecContext(context.Background(), "DELETE FROM workflow_snapshots WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Close closes the connection pool. Safe to call more than once.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics for monitoring.
func (m *MySQLStore) Stats() sql.DBStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db.Stats()
}

// WithTransaction executes fn within a database transaction, rolling back on
// error and committing otherwise. Exposed for callers needing to combine a
// snapshot write with other application-level persistence atomically.
func (m *MySQLStore) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

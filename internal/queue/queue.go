// Package queue provides the persistent local operation queue for goflow-sync.
//
// Queued operations are held in an embedded SQLite database (WAL mode) until
// the remote endpoint acknowledges them. The database is the single source
// of truth for what is pending: the sync engine re-drains it every tick and
// never keeps its own copy of the queue across ticks, so a crash or restart
// cannot diverge memory from storage.
//
// Ordering is by a monotonic sequence assigned at enqueue time, which gives
// FIFO delivery within a project. Removal is explicit and idempotent, and
// happens only after remote acknowledgment (or an explicit user-initiated
// clear).
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goflowspace/goflow-sync/internal/schema"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrStorageFull indicates the local database cannot accept more operations.
// This is a fatal condition: retrying silently would risk data loss, so the
// engine surfaces it to the operator instead.
var ErrStorageFull = errors.New("operation queue storage is full")

// Queue wraps the SQLite connection holding locally buffered operations.
type Queue struct {
	conn *sql.DB
	path string
}

// Open creates a new queue database at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created along with the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	q, err := queue.Open(".goflow/sync.db")
//	if err != nil {
//	    return err
//	}
//	defer q.Close()
func Open(path string) (*Queue, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping queue database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	q := &Queue{
		conn: conn,
		path: path,
	}

	// WAL mode for concurrent reads
	if _, err := q.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := q.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := q.initSchema(); err != nil {
		_ = q.Close()
		return nil, err
	}

	return q, nil
}

// RawDB returns the underlying sql.DB connection.
func (q *Queue) RawDB() *sql.DB {
	return q.conn
}

// Close closes the queue database, checkpointing the WAL first.
func (q *Queue) Close() error {
	if q.conn == nil {
		return nil
	}

	if _, err := q.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("failed to close queue database: %w", err)
	}

	q.conn = nil
	return nil
}

// initSchema creates the operations table if it doesn't exist. Idempotent.
func (q *Queue) initSchema() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS operations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT,
		node_id TEXT,
		timeline_id TEXT,
		graph_id TEXT,
		enqueued_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_project_seq
	    ON operations(project_id, seq);
	`

	if _, err := q.conn.Exec(ddl); err != nil {
		return fmt.Errorf("failed to initialize queue schema: %w", err)
	}

	return nil
}

// Enqueue appends an operation to the queue.
//
// Never touches the network. Fails only on invalid operations or local
// storage exhaustion; the latter is reported as ErrStorageFull.
func (q *Queue) Enqueue(ctx context.Context, op *schema.QueuedOperation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}

	query := `
	INSERT INTO operations (
		id, project_id, device_id, type, payload,
		node_id, timeline_id, graph_id, enqueued_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.conn.ExecContext(ctx, query,
		op.ID,
		op.ProjectID,
		op.DeviceID,
		op.Type,
		nullableString(string(op.Payload)),
		nullableString(op.NodeID),
		nullableString(op.TimelineID),
		nullableString(op.GraphID),
		op.EnqueuedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("%w: %v", ErrStorageFull, err)
		}
		return fmt.Errorf("failed to enqueue operation %s: %w", op.ID, err)
	}

	return nil
}

// DrainPending returns up to limit oldest-first operations for the project.
//
// Operations are NOT removed; removal is explicit via DeleteOperations once
// the remote endpoint has acknowledged them.
func (q *Queue) DrainPending(ctx context.Context, projectID string, limit int) ([]*schema.QueuedOperation, error) {
	query := `
	SELECT id, project_id, device_id, type, payload,
	       node_id, timeline_id, graph_id, enqueued_at
	FROM operations
	WHERE project_id = ?
	ORDER BY seq ASC
	LIMIT ?
	`

	rows, err := q.conn.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	return scanOperations(rows)
}

// DeleteOperations removes acknowledged operations by id.
//
// Idempotent: deleting an already-absent id is not an error, because the
// engine may re-process a batch whose earlier acknowledgment was lost.
func (q *Queue) DeleteOperations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf("DELETE FROM operations WHERE id IN (%s)", placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := q.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete operations: %w", err)
	}

	return nil
}

// Count returns the number of pending operations for the project.
//
// Reads see all earlier Enqueue/DeleteOperations calls from this client.
func (q *Queue) Count(ctx context.Context, projectID string) (int, error) {
	var count int
	err := q.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM operations WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

// Projects returns the distinct project ids with pending operations.
func (q *Queue) Projects(ctx context.Context) ([]string, error) {
	rows, err := q.conn.QueryContext(ctx,
		"SELECT DISTINCT project_id FROM operations ORDER BY project_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// Clear discards every pending operation for the project and returns how
// many were dropped. This is the only sanctioned way to drop operations
// without remote acknowledgment, and is reserved for explicit user action.
func (q *Queue) Clear(ctx context.Context, projectID string) (int, error) {
	res, err := q.conn.ExecContext(ctx,
		"DELETE FROM operations WHERE project_id = ?", projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue for project %s: %w", projectID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared operations: %w", err)
	}

	return int(n), nil
}

// scanOperations is a helper to scan operations from query results.
func scanOperations(rows *sql.Rows) ([]*schema.QueuedOperation, error) {
	var ops []*schema.QueuedOperation

	for rows.Next() {
		var op schema.QueuedOperation
		var payload, nodeID, timelineID, graphID sql.NullString
		var enqueuedAt string

		err := rows.Scan(
			&op.ID,
			&op.ProjectID,
			&op.DeviceID,
			&op.Type,
			&payload,
			&nodeID,
			&timelineID,
			&graphID,
			&enqueuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		op.NodeID = nodeID.String
		op.TimelineID = timelineID.String
		op.GraphID = graphID.String

		if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
			op.EnqueuedAt = t
		}

		ops = append(ops, &op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// nullableString converts an empty string to NULL for SQL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// isDiskFull reports whether err is SQLite's storage exhaustion error.
func isDiskFull(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "SQLITE_FULL")
}

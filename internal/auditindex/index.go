// Package auditindex keeps a queryable SQLite copy of the audit log.
//
// The YAML audit document stays the source of truth. The index exists so
// history queries (by entity, user, action, or time range) do not scan the
// whole document, and it can be rebuilt from the document at any time.
//
// The database runs embedded through ncruces/go-sqlite3 with WAL enabled,
// so the API server can read while the broadcaster inserts.
package auditindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// DefaultFileName is the index file created inside the data directory.
const DefaultFileName = "audit.db"

// Index wraps the SQLite connection.
type Index struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens or creates the index at path and initializes its schema.
// The caller must Close it.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit index: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping audit index: %w", err)
	}
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	idx := &Index{conn: conn, path: path, logger: logger.With("component", "auditindex")}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err := idx.InitSchema(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// Path returns the database file path.
func (idx *Index) Path() string {
	return idx.path
}

// Close checkpoints the WAL and closes the connection.
func (idx *Index) Close() error {
	if idx.conn == nil {
		return nil
	}
	if _, err := idx.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		idx.logger.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := idx.conn.Close(); err != nil {
		return fmt.Errorf("failed to close audit index: %w", err)
	}
	idx.conn = nil
	return nil
}

// InitSchema creates the table and indexes. It is idempotent.
func (idx *Index) InitSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,          -- unix nanoseconds, for ordering
		timestamp TEXT NOT NULL,      -- RFC3339Nano, as stored
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		changes TEXT NOT NULL         -- JSON
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_logs(ts);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_logs(entity_type, entity_id, ts);
	CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_logs(user_id, ts);
	`
	if _, err := idx.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize audit index schema: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertQuery = `
	INSERT INTO audit_logs (id, ts, timestamp, user_id, action, entity_type, entity_id, changes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		ts = excluded.ts,
		timestamp = excluded.timestamp,
		user_id = excluded.user_id,
		action = excluded.action,
		entity_type = excluded.entity_type,
		entity_id = excluded.entity_id,
		changes = excluded.changes
	`

func insert(ctx context.Context, ex execer, entry schema.AuditLog) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes of %s: %w", entry.ID, err)
	}
	ts := entry.Timestamp.UTC()
	_, err = ex.ExecContext(ctx, insertQuery,
		entry.ID,
		ts.UnixNano(),
		ts.Format(time.RFC3339Nano),
		entry.UserID,
		string(entry.Action),
		string(entry.EntityType),
		entry.TargetID,
		string(changes),
	)
	if err != nil {
		return fmt.Errorf("failed to index audit record %s: %w", entry.ID, err)
	}
	return nil
}

// Insert adds or replaces one audit record.
func (idx *Index) Insert(ctx context.Context, entry schema.AuditLog) error {
	return insert(ctx, idx.conn, entry)
}

// Rebuild replaces the whole index with entries in one transaction.
func (idx *Index) Rebuild(ctx context.Context, entries []schema.AuditLog) error {
	tx, err := idx.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM audit_logs"); err != nil {
		return fmt.Errorf("failed to clear audit index: %w", err)
	}
	for _, entry := range entries {
		if err := insert(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	idx.logger.Info("audit index rebuilt", "count", len(entries))
	return nil
}

// Count returns the number of indexed records.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := idx.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	EntityType schema.Kind
	EntityID   string
	UserID     string
	Action     schema.Action
	Since      time.Time
	Until      time.Time

	// Limit caps the result size (0 = no limit).
	Limit int
}

// Query returns matching records, newest first.
func (idx *Index) Query(ctx context.Context, f Filter) ([]schema.AuditLog, error) {
	var conditions []string
	var args []any

	if f.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(f.Action))
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "ts < ?")
		args = append(args, f.Until.UTC().UnixNano())
	}

	query := `SELECT id, timestamp, user_id, action, entity_type, entity_id, changes FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := idx.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit index: %w", err)
	}
	defer rows.Close()

	var out []schema.AuditLog
	for rows.Next() {
		var (
			entry            schema.AuditLog
			ts, action, kind string
			changes          string
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.UserID, &action, &kind, &entry.TargetID, &changes); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("bad timestamp on %s: %w", entry.ID, err)
		}
		entry.Action = schema.Action(action)
		entry.EntityType = schema.Kind(kind)
		if err := json.Unmarshal([]byte(changes), &entry.Changes); err != nil {
			return nil, fmt.Errorf("bad changes on %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/flowmesh/workflow/engine"
)

// SQLiteStore is a single-file SQLite-backed StateStore, grounded on the
// teacher's store/sqlite.go WAL + busy-timeout setup. It is the recommended
// alternate backend for a single-process deployment that wants a real
// database without standing up a server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and, if needed, creates) a database at path. Use
// ":memory:" for a transient, test-only instance.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite supports one writer at a time.

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS workflow_states (
	user_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	state TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, workflow_id)
);
CREATE INDEX IF NOT EXISTS idx_workflow_states_user ON workflow_states(user_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying *sql.DB.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, state *engine.WorkflowState) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM workflow_states WHERE user_id = ? AND workflow_id = ?`,
		state.UserID, state.WorkflowID).Scan(&exists)
	if err == nil {
		return ErrAlreadyActive
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("store: check existing: %w", err)
	}

	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_states (user_id, workflow_id, state, expires_at) VALUES (?, ?, ?, ?)`,
		state.UserID, state.WorkflowID, b, state.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, workflowID string) (*engine.WorkflowState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM workflow_states WHERE user_id = ? AND workflow_id = ?`,
		userID, workflowID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: select: %w", err)
	}
	var state engine.WorkflowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) GetActiveForUser(ctx context.Context, userID string) (*engine.WorkflowState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM workflow_states WHERE user_id = ? LIMIT 1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: select active: %w", err)
	}
	var state engine.WorkflowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	return &state, nil
}

func (s *SQLiteStore) Update(ctx context.Context, state *engine.WorkflowState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_states SET state = ?, expires_at = ? WHERE user_id = ? AND workflow_id = ?`,
		b, state.ExpiresAt.Unix(), state.UserID, state.WorkflowID)
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.Create(ctx, state)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE user_id = ? AND workflow_id = ?`, userID, workflowID)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*engine.WorkflowState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM workflow_states`)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*engine.WorkflowState
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		var state engine.WorkflowState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("store: decode: %w", err)
		}
		out = append(out, &state)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flowmesh/workflow/engine"
)

// MySQLStore is a MySQL/MariaDB-backed StateStore for deployments that run
// multiple engine processes against shared state — the filesystem store's
// single-writer assumption (spec.md §9) doesn't hold across hosts, so a
// fleet needs a real database instead. Grounded on the teacher's
// store/mysql.go connection-pooling conventions.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and ensures the schema
// exists. DSN format: "user:password@tcp(host:3306)/dbname?parseTime=true".
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS workflow_states (
	user_id VARCHAR(191) NOT NULL,
	workflow_id VARCHAR(191) NOT NULL,
	state JSON NOT NULL,
	expires_at BIGINT NOT NULL,
	PRIMARY KEY (user_id, workflow_id),
	INDEX idx_workflow_states_user (user_id)
) ENGINE=InnoDB;
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) Create(ctx context.Context, state *engine.WorkflowState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_states (user_id, workflow_id, state, expires_at) VALUES (?, ?, ?, ?)`,
		state.UserID, state.WorkflowID, b, state.ExpiresAt.Unix())
	if err != nil {
		if isDuplicateKeyErr(err) {
			return ErrAlreadyActive
		}
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, userID, workflowID string) (*engine.WorkflowState, error) {
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

func (s *MySQLStore) GetActiveForUser(ctx context.Context, userID string) (*engine.WorkflowState, error) {
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

func (s *MySQLStore) Update(ctx context.Context, state *engine.WorkflowState) error {
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

func (s *MySQLStore) Delete(ctx context.Context, userID, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workflow_states WHERE user_id = ? AND workflow_id = ?`, userID, workflowID)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *MySQLStore) ListAll(ctx context.Context) ([]*engine.WorkflowState, error) {
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

// isDuplicateKeyErr recognizes MySQL error 1062 (duplicate entry for a
// primary/unique key) without importing the driver's internal error type.
func isDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

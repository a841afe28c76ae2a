package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hark/apps/backend/internal/pipeline"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	workflow_id TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`

// SQLiteStore is a file-backed store for one-shot runs outside the server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path, creating the parent
// directory when needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, workflowID string) (pipeline.Checkpoint, error) {
	if workflowID == "" {
		return nil, nil
	}
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM checkpoints WHERE workflow_id = ?", workflowID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp pipeline.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteStore) Put(ctx context.Context, workflowID string, cp pipeline.Checkpoint) error {
	if workflowID == "" {
		return nil
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		workflowID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE workflow_id = ?", workflowID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

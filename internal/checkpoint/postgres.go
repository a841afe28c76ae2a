package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hark/apps/backend/internal/pipeline"
)

// PostgresStore keeps checkpoints in the source_state column of the
// workflows table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, workflowID string) (pipeline.Checkpoint, error) {
	if workflowID == "" {
		return nil, nil
	}
	var raw []byte
	query := `SELECT source_state FROM workflows WHERE id = $1 AND deleted_at IS NULL`
	err := s.db.QueryRowContext(ctx, query, workflowID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var cp pipeline.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return cp, nil
}

func (s *PostgresStore) Put(ctx context.Context, workflowID string, cp pipeline.Checkpoint) error {
	if workflowID == "" {
		return nil
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	query := `UPDATE workflows SET source_state = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, raw, workflowID)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return expectOneRow(res, workflowID)
}

func (s *PostgresStore) Delete(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return nil
	}
	query := `UPDATE workflows SET source_state = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, workflowID)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return expectOneRow(res, workflowID)
}

func expectOneRow(res sql.Result, workflowID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return nil
}

package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type Repository interface {
	Create(ctx context.Context, w *Workflow) error
	Get(ctx context.Context, id string) (*Workflow, error)
	List(ctx context.Context) ([]Workflow, error)
	Update(ctx context.Context, w *Workflow) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	ListDue(ctx context.Context, now time.Time) ([]Workflow, error)
	MarkScheduled(ctx context.Context, id string, at time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const selectColumns = `SELECT id, name, config, interval_seconds, last_run_at, created_at, updated_at FROM workflows`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s scanner) (*Workflow, error) {
	var (
		w       Workflow
		raw     []byte
		lastRun sql.NullTime
	)
	if err := s.Scan(&w.ID, &w.Name, &raw, &w.IntervalSeconds, &lastRun, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w.Config); err != nil {
			return nil, err
		}
	}
	if lastRun.Valid {
		w.LastRunAt = &lastRun.Time
	}
	return &w, nil
}

func (r *PostgresRepo) Create(ctx context.Context, w *Workflow) error {
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return err
	}
	query := `INSERT INTO workflows (name, config, interval_seconds) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, w.Name, cfg, w.IntervalSeconds).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Workflow, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1 AND deleted_at IS NULL`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Workflow, error) {
	return r.query(ctx, selectColumns+` WHERE deleted_at IS NULL ORDER BY created_at DESC`)
}

// ListDue returns the scheduled workflows whose interval has elapsed.
func (r *PostgresRepo) ListDue(ctx context.Context, now time.Time) ([]Workflow, error) {
	return r.query(ctx, selectColumns+` WHERE deleted_at IS NULL AND interval_seconds > 0
		AND (last_run_at IS NULL OR last_run_at + make_interval(secs => interval_seconds) <= $1)
		ORDER BY last_run_at NULLS FIRST`, now)
}

func (r *PostgresRepo) query(ctx context.Context, query string, args ...any) ([]Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, w *Workflow) error {
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return err
	}
	query := `UPDATE workflows SET name = $1, config = $2, interval_seconds = $3, updated_at = NOW() WHERE id = $4 AND deleted_at IS NULL RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, w.Name, cfg, w.IntervalSeconds, w.ID).Scan(&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) MarkScheduled(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflows SET last_run_at = $1 WHERE id = $2`, at, id)
	return err
}

package workflow_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/features/workflow"
)

var columns = []string{"id", "name", "config", "interval_seconds", "last_run_at", "created_at", "updated_at"}

func TestPostgresRepo_CreateAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := workflow.NewPostgresRepo(db)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	wf := validWorkflow()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO workflows (name, config, interval_seconds)`)).
		WithArgs("reviews", sqlmock.AnyArg(), 300).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("wf-1", now, now))
	require.NoError(t, repo.Create(context.Background(), wf))
	assert.Equal(t, "wf-1", wf.ID)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM workflows WHERE id = $1 AND deleted_at IS NULL`)).
		WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("wf-1", "reviews", []byte(`{"source":{"type":"appstore","app_id":"123"}}`), 300, nil, now, now))
	got, err := repo.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "reviews", got.Name)
	assert.Nil(t, got.LastRunAt)
	assert.JSONEq(t, `{"type":"appstore","app_id":"123"}`, string(got.Config.Source))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM workflows WHERE id = $1`)).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "gone")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := workflow.NewPostgresRepo(db)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)

	mock.ExpectQuery(`interval_seconds > 0`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a", "first", []byte(`{}`), 60, nil, now, now).
			AddRow("b", "second", []byte(`{}`), 60, last, now, now))

	due, err := repo.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, last, *due[1].LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := workflow.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE workflows SET deleted_at = NOW()`)).
		WithArgs("wf-9").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "wf-9"), workflow.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE workflows SET last_run_at = $1 WHERE id = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkScheduled(context.Background(), "wf-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

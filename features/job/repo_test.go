package job_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/features/job"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := job.NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO failed_jobs (workflow_id, handler, payload, error)`)).
		WithArgs("wf-1", job.HandlerWorkflowRun, []byte(`{}`), "boom").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "retries"}).AddRow("j-1", now, 2))

	j := &job.Job{WorkflowID: "wf-1", Handler: job.HandlerWorkflowRun, Payload: []byte(`{}`), Error: "boom"}
	require.NoError(t, repo.Save(context.Background(), j))
	assert.Equal(t, "j-1", j.ID)
	assert.Equal(t, 2, j.Retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := job.NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, workflow_id, handler, payload, error, retries, created_at FROM failed_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workflow_id", "handler", "payload", "error", "retries", "created_at"}).
			AddRow("j-1", "wf-1", job.HandlerWorkflowRun, []byte(`{"workflow_id":"wf-1"}`), "timeout", 0, now))

	jobs, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.JSONEq(t, `{"workflow_id":"wf-1"}`, string(jobs[0].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List_ByWorkflow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := job.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM failed_jobs WHERE workflow_id = $1 ORDER BY created_at DESC`)).
		WithArgs("wf-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workflow_id", "handler", "payload", "error", "retries", "created_at"}))

	jobs, err := repo.List(context.Background(), "wf-2")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package checkpoint_test

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/pipeline"
)

func sampleCheckpoint() pipeline.Checkpoint {
	cp := pipeline.Checkpoint{}
	cp.SetCursor("us", pipeline.Cursor{
		SinceTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		SinceID:   "r-1",
	})
	return cp
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := checkpoint.NewPostgresStore(db)
	query := regexp.QuoteMeta(`SELECT source_state FROM workflows WHERE id = $1 AND deleted_at IS NULL`)

	mock.ExpectQuery(query).WithArgs("wf-1").
		WillReturnRows(sqlmock.NewRows([]string{"source_state"}).AddRow([]byte(`{"us":{"since_time":"2024-05-01T10:00:00Z","since_id":"r-1"}}`)))

	cp, err := store.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, sampleCheckpoint().Cursor("us"), cp.Cursor("us"))

	mock.ExpectQuery(query).WithArgs("wf-2").
		WillReturnRows(sqlmock.NewRows([]string{"source_state"}).AddRow(nil))

	cp, err = store.Get(context.Background(), "wf-2")
	require.NoError(t, err)
	assert.Nil(t, cp)

	mock.ExpectQuery(query).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"source_state"}))

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrUnknownWorkflow)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := checkpoint.NewPostgresStore(db)
	query := regexp.QuoteMeta(`UPDATE workflows SET source_state = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`)

	mock.ExpectExec(query).WithArgs(sqlmock.AnyArg(), "wf-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Put(context.Background(), "wf-1", sampleCheckpoint()))

	mock.ExpectExec(query).WithArgs(sqlmock.AnyArg(), "gone").WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.Put(context.Background(), "gone", sampleCheckpoint())
	assert.ErrorIs(t, err, checkpoint.ErrUnknownWorkflow)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := checkpoint.NewPostgresStore(db)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE workflows SET source_state = NULL`)).
		WithArgs("wf-1").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "wf-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "hark.db")
	store, err := checkpoint.OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	cp, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, store.Put(ctx, "wf-1", sampleCheckpoint()))

	next := sampleCheckpoint()
	next.SetCursor("us", pipeline.Cursor{SinceTime: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, store.Put(ctx, "wf-1", next))

	cp, err = store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), cp.Cursor("us").SinceTime)
	assert.Equal(t, "r-1", cp.Cursor("us").SinceID)

	require.NoError(t, store.Delete(ctx, "wf-1"))
	cp, err = store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, store.Put(ctx, "wf-1", cp))

	cp.SetCursor("us", pipeline.Cursor{SinceID: "mutated"})
	got, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.Cursor("us").SinceID)

	got.SetCursor("us", pipeline.Cursor{SinceID: "mutated-again"})
	again, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", again.Cursor("us").SinceID)

	require.NoError(t, store.Delete(ctx, "wf-1"))
	gone, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStores_EmptyWorkflowIDIsStateless(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlite, err := checkpoint.OpenSQLite(filepath.Join(t.TempDir(), "hark.db"))
	require.NoError(t, err)
	defer sqlite.Close()

	stores := map[string]checkpoint.Store{
		"postgres": checkpoint.NewPostgresStore(db),
		"sqlite":   sqlite,
		"memory":   checkpoint.NewMemoryStore(),
	}
	ctx := context.Background()

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "", sampleCheckpoint()))

			cp, err := store.Get(ctx, "")
			require.NoError(t, err)
			assert.Nil(t, cp)

			require.NoError(t, store.Delete(ctx, ""))
		})
	}

	// no statement ever reached postgres
	assert.NoError(t, mock.ExpectationsWereMet())
}

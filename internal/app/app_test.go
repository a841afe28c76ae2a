package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/internal/analyzer"
	"hark/apps/backend/internal/config"
	"hark/apps/backend/internal/lock"
	"hark/apps/backend/internal/sink"
	"hark/apps/backend/internal/source"
)

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// NSQ Producer doesn't connect until the first publish
	producer, err := nsq.NewProducer("localhost:4150", nsq.NewConfig())
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	app, err := New(&config.Config{LockTTLSeconds: 60}, &Dependencies{DB: db, NSQProducer: producer}, logger, &Options{Locker: lock.NewLocal()})
	require.NoError(t, err)
	return app, mock
}

func TestNew(t *testing.T) {
	app, _ := newTestApp(t)
	assert.NotNil(t, app.Handler)
	assert.NotNil(t, app.WorkflowService)
	assert.NotNil(t, app.Processor)
	assert.NotNil(t, app.RunConsumer)
	assert.NotNil(t, app.Scheduler)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(&config.Config{}, &Dependencies{}, slog.Default(), nil)
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	app, mock := newTestApp(t)

	// preflight never reaches the handlers
	for _, path := range []string{"/workflows", "/workflows/wf-1/run", "/workflows/wf-1/checkpoint", "/jobs/failed", "/stats", "/settings"} {
		req := httptest.NewRequest("OPTIONS", path, nil)
		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, map[string]int{"workflows": 4, "failed_jobs": 1, "records": 0}, body.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubModel struct{}

func (stubModel) GenerateJSON(context.Context, string, any) error { return nil }

func TestNewComponents(t *testing.T) {
	bare := NewComponents(ComponentDeps{})
	full := NewComponents(ComponentDeps{Model: stubModel{}, Runner: source.NewBrowserRunner(), Publisher: &nsq.Producer{}})

	tests := []struct {
		name    string
		resolve func(c *Components) error
		inBare  bool
	}{
		{"reddit", sourceFor(`{"type":"reddit","subreddits":["golang"]}`), true},
		{"crawler", sourceFor(`{"type":"crawler","urls":["https://example.com"]}`), false},
		{"pii", analyzerFor(`{"type":"pii"}`), true},
		{"sentiment", analyzerFor(`{"type":"sentiment"}`), false},
		{"chain", analyzerFor(`{"type":"chain","steps":[{"type":"pii"}]}`), true},
		{"logger", sinkFor(`{"type":"logger"}`), true},
		{"queue", sinkFor(`{"type":"queue","topic":"records"}`), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.resolve(full))
			if tt.inBare {
				assert.NoError(t, tt.resolve(bare))
			} else {
				assert.Error(t, tt.resolve(bare))
			}
		})
	}
}

func sourceFor(raw string) func(c *Components) error {
	return func(c *Components) error {
		cfg, err := source.DecodeConfig([]byte(raw))
		if err != nil {
			return err
		}
		_, err = c.Sources.For(cfg)
		return err
	}
}

func analyzerFor(raw string) func(c *Components) error {
	return func(c *Components) error {
		cfg, err := analyzer.DecodeConfig([]byte(raw))
		if err != nil {
			return err
		}
		_, err = c.Analyzers.For(cfg)
		return err
	}
}

func sinkFor(raw string) func(c *Components) error {
	return func(c *Components) error {
		cfg, err := sink.DecodeConfig([]byte(raw))
		if err != nil {
			return err
		}
		_, err = c.Sinks.For(cfg)
		return err
	}
}

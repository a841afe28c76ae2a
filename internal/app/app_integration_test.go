package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/app"
	"hark/apps/backend/internal/lock"
	"hark/apps/backend/internal/sink"
	"hark/apps/backend/internal/testutils"
)

// rewriteTransport sends every request to target, keeping path and query.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func fakeReddit(t *testing.T, now time.Time) *httptest.Server {
	t.Helper()
	post := func(name string, age time.Duration) map[string]any {
		return map[string]any{"kind": "t3", "data": map[string]any{
			"id": name[3:], "name": name, "title": "post " + name, "selftext": "body",
			"author": "alice", "subreddit": "golang", "created_utc": float64(now.Add(-age).Unix()),
		}}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/new.json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"after": "",
			"children": []any{
				post("t3_c", 1*time.Minute),
				post("t3_b", 2*time.Minute),
				post("t3_a", 3*time.Minute),
			},
		}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_EndToEnd_WorkflowPass(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	cfg := s.GetAppConfig()
	deps, err := app.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer deps.Close()

	reddit := fakeReddit(t, time.Now())
	target, _ := url.Parse(reddit.URL)

	application, err := app.New(cfg, deps, nil, &app.Options{
		Locker:     lock.NewRedis(deps.Redis, "test:"),
		HTTPClient: &http.Client{Transport: rewriteTransport{target: target}},
	})
	require.NoError(t, err)

	// 1. Create Workflow via HTTP
	body, _ := json.Marshal(map[string]any{
		"name": "golang mentions",
		"config": map[string]any{
			"source":   map[string]any{"type": "reddit", "subreddits": []string{"golang"}},
			"analyzer": map[string]any{"type": "chain", "steps": []any{map[string]any{"type": "pii"}, map[string]any{"type": "dummy", "dummy_data": map[string]any{"team": "dx"}}}},
			"sink":     map[string]any{"type": "store"},
		},
	})
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/workflows", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data workflow.Workflow `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	id := created.Data.ID

	// 2. Trigger and consume the run task
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/workflows/"+id+"/run", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	msg := consumeOne(t, cfg.NSQDHost)
	require.NoError(t, application.RunConsumer.HandleMessage(msg))

	// 3. Records landed in the store sink
	var count int64
	require.NoError(t, deps.Gorm.Model(&sink.EnrichedRecord{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	// 4. Checkpoint was committed
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/workflows/"+id+"/checkpoint", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"since_id":"t3_c"`)

	// 5. A second pass finds nothing new and leaves the store alone
	report, err := application.Processor.Process(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, report.Fetched)
	require.NoError(t, deps.Gorm.Model(&sink.EnrichedRecord{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func consumeOne(t *testing.T, nsqd string) *nsq.Message {
	t.Helper()
	ch := make(chan *nsq.Message, 1)
	consumer, err := nsq.NewConsumer("workflow.run", fmt.Sprintf("test-%d", time.Now().UnixNano()), nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		select {
		case ch <- m:
		default:
		}
		return nil
	}))
	require.NoError(t, consumer.ConnectToNSQD(nsqd))
	defer consumer.Stop()

	select {
	case m := <-ch:
		return m
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for run task")
		return nil
	}
}

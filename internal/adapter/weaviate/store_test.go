package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "hark/apps/backend/internal/adapter/weaviate"
)

const objectID = "5b7f2f4e-3c1d-5d7a-9a51-0d3e6f1e2a44"

func mockWeaviate(t *testing.T, handler http.HandlerFunc) *adapter.Store {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			_, _ = w.Write([]byte(`{"version": "1.33.0"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(t, err)
	return adapter.NewStore(client)
}

func TestStore_UpsertRecord_Creates(t *testing.T) {
	var methods []string
	store := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodHead:
			assert.Equal(t, "/v1/objects/EnrichedRecord/"+objectID, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			assert.Equal(t, "/v1/objects", r.URL.Path)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, objectID, body["id"])
			assert.Equal(t, "EnrichedRecord", body["class"])
			assert.Equal(t, "great app", body["properties"].(map[string]interface{})["content"])
			assert.Len(t, body["vector"], 2)
			_ = json.NewEncoder(w).Encode(body)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	created, err := store.UpsertRecord(context.Background(), objectID, map[string]interface{}{"content": "great app"}, []float32{0.1, 0.2})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{http.MethodHead, http.MethodPost}, methods)
}

func TestStore_UpsertRecord_Replaces(t *testing.T) {
	var methods []string
	store := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			assert.Equal(t, "/v1/objects/EnrichedRecord/"+objectID, r.URL.Path)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Nil(t, body["vector"])
			_ = json.NewEncoder(w).Encode(body)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	created, err := store.UpsertRecord(context.Background(), objectID, map[string]interface{}{"content": "updated"}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{http.MethodHead, http.MethodPut}, methods)
}

func TestStore_UpsertRecord_CheckFails(t *testing.T) {
	store := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := store.UpsertRecord(context.Background(), objectID, map[string]interface{}{}, nil)
	assert.Error(t, err)
}

func TestStore_CountRecords(t *testing.T) {
	store := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		query := body["query"].(string)
		assert.True(t, strings.Contains(query, "Aggregate") && strings.Contains(query, "EnrichedRecord"))
		_, _ = w.Write([]byte(`{"data":{"Aggregate":{"EnrichedRecord":[{"meta":{"count":42}}]}}}`))
	})

	count, err := store.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestStore_CountRecords_GraphQLError(t *testing.T) {
	store := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"class not found"}]}`))
	})
	_, err := store.CountRecords(context.Background())
	assert.ErrorContains(t, err, "class not found")
}

package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"hark/apps/backend/internal/pipeline"
	"hark/apps/backend/internal/settings"
)

type staticSettings struct {
	s   *settings.Settings
	err error
}

func (m *staticSettings) Get(ctx context.Context) (*settings.Settings, error) {
	return m.s, m.err
}

func TestDynamicClient_ClientSwitching(t *testing.T) {
	c := NewDynamicClient(&staticSettings{s: &settings.Settings{GeminiAPIKey: "key1"}})
	ctx := context.Background()

	client1, err := c.getClient(ctx, "key1")
	assert.NoError(t, err)
	assert.NotNil(t, client1)
	assert.Equal(t, "key1", c.currentKey)

	client2, err := c.getClient(ctx, "key1")
	assert.NoError(t, err)
	assert.Same(t, client1, client2)

	client3, err := c.getClient(ctx, "key2")
	assert.NoError(t, err)
	assert.NotSame(t, client1, client3)
	assert.Equal(t, "key2", c.currentKey)

	assert.NoError(t, c.Close())
	assert.Nil(t, c.client)
}

func TestMapError(t *testing.T) {
	denied := mapError(&googleapi.Error{Code: http.StatusForbidden, Message: "API key not valid"})
	assert.ErrorIs(t, denied, pipeline.ErrUpstreamDenied)

	limited := mapError(&googleapi.Error{Code: http.StatusTooManyRequests})
	assert.ErrorIs(t, limited, pipeline.ErrUpstreamUnavailable)

	assert.ErrorIs(t, mapError(errors.New("dial tcp: refused")), pipeline.ErrUpstreamUnavailable)
}

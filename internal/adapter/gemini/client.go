package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"hark/apps/backend/internal/pipeline"
	"hark/apps/backend/internal/settings"
)

const upstream = "gemini"

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicClient talks to Gemini with whatever key and models the settings
// currently hold. The underlying client is rebuilt when the key changes.
type DynamicClient struct {
	settings   SettingsProvider
	client     *genai.Client
	currentKey string
	mu         sync.RWMutex
	clientOpts []option.ClientOption
}

func NewDynamicClient(svc SettingsProvider, opts ...option.ClientOption) *DynamicClient {
	return &DynamicClient{
		settings:   svc,
		clientOpts: opts,
	}
}

func (c *DynamicClient) Embed(ctx context.Context, text string) ([]float32, error) {
	s, client, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.EmbeddingModel(s.EmbeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, mapError(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

// GenerateJSON asks the text model for a JSON answer and decodes it into out.
func (c *DynamicClient) GenerateJSON(ctx context.Context, prompt string, out any) error {
	s, client, err := c.resolve(ctx)
	if err != nil {
		return err
	}

	model := client.GenerativeModel(s.GeminiModel)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return mapError(err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	if b.Len() == 0 {
		return fmt.Errorf("empty response from %s", s.GeminiModel)
	}
	if err := json.Unmarshal([]byte(b.String()), out); err != nil {
		return fmt.Errorf("model answered with invalid JSON: %w", err)
	}
	return nil
}

func (c *DynamicClient) resolve(ctx context.Context) (*settings.Settings, *genai.Client, error) {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, nil, &pipeline.ConfigError{Component: upstream, Field: "gemini_api_key", Reason: "is not configured"}
	}
	client, err := c.getClient(ctx, s.GeminiAPIKey)
	if err != nil {
		return nil, nil, err
	}
	return s, client, nil
}

func (c *DynamicClient) getClient(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.RLock()
	if c.client != nil && c.currentKey == key {
		defer c.mu.RUnlock()
		return c.client, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.currentKey == key {
		return c.client, nil
	}

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	c.currentKey = key
	return client, nil
}

// Close releases the current client, if any.
func (c *DynamicClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client, c.currentKey = nil, ""
	return err
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return pipeline.StatusError(upstream, gerr.Code, gerr.Message)
	}
	return pipeline.Unavailable(upstream, err)
}

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindHTTP = "http"

	maxErrorBody = 512
)

func init() { register[WebhookConfig](KindHTTP) }

type WebhookConfig struct {
	Type        string            `json:"type"`
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	BasePayload map[string]any    `json:"base_payload,omitempty"`
}

func (c *WebhookConfig) Kind() string { return KindHTTP }

func (c *WebhookConfig) Validate() error {
	if err := validateURL(KindHTTP, "url", c.URL); err != nil {
		return err
	}
	switch strings.ToUpper(c.Method) {
	case "", http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return pipeline.InvalidField(KindHTTP, "method", fmt.Sprintf("unsupported method %q", c.Method))
	}
	return nil
}

func (c *WebhookConfig) method() string {
	if c.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(c.Method)
}

// Webhook sends every record as a JSON document to a caller supplied URL.
type Webhook struct {
	httpBase
}

func NewWebhook(opts ...Option) *Webhook {
	return &Webhook{httpBase: newHTTPBase(opts)}
}

func (w *Webhook) Kind() string { return KindHTTP }

func (w *Webhook) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[WebhookConfig](KindHTTP, cfg)
	if err != nil {
		return nil, err
	}
	conv := DefaultConvertor{BasePayload: c.BasePayload}

	return deliverEach(ctx, KindHTTP, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		payload, err := conv.Convert(r)
		if err != nil {
			return "", err
		}
		if err := w.doJSON(ctx, KindHTTP, c.method(), c.URL, c.Headers, payload, nil); err != nil {
			return "", err
		}
		return StatusDelivered, nil
	})
}

// doJSON sends body as JSON and decodes a JSON answer into out when out is
// non-nil. Failures map onto the upstream error taxonomy.
func (b *httpBase) doJSON(ctx context.Context, sink, method, target string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pipeline.Unavailable(sink, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pipeline.StatusError(sink, resp.StatusCode, string(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pipeline.Unavailable(sink, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func validateURL(component, field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return pipeline.MissingField(component, field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return pipeline.InvalidField(component, field, fmt.Sprintf("%q is not an absolute http(s) URL", raw))
	}
	return nil
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"hark/apps/backend/internal/pipeline"
)

const maxErrorBody = 512

// getJSON performs a GET and decodes the body into out, translating failures
// into the upstream error taxonomy.
func (b *base) getJSON(ctx context.Context, source, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
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
		return pipeline.Unavailable(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pipeline.StatusError(source, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pipeline.Unavailable(source, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

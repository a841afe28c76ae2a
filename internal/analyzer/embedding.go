package analyzer

import (
	"context"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const KindEmbedding = "embedding"

func init() { register[EmbeddingConfig](KindEmbedding) }

type EmbeddingConfig struct {
	Type string `json:"type"`
	Batching
}

func (c *EmbeddingConfig) Kind() string    { return KindEmbedding }
func (c *EmbeddingConfig) Validate() error { return c.Batching.validate(KindEmbedding) }

// Embedding attaches a dense vector to each record for the search index sink.
type Embedding struct {
	embedder Embedder
}

func NewEmbedding(e Embedder) *Embedding { return &Embedding{embedder: e} }

func (e *Embedding) Kind() string { return KindEmbedding }

func (e *Embedding) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[EmbeddingConfig](KindEmbedding, cfg)
	if err != nil {
		return nil, err
	}
	return runBatched(ctx, KindEmbedding, records, c.size(), func(ctx context.Context, batch []pipeline.Record) []error {
		errs := make([]error, len(batch))
		for i := range batch {
			if strings.TrimSpace(batch[i].ProcessedText) == "" {
				continue
			}
			vec, err := e.embedder.Embed(ctx, batch[i].ProcessedText)
			if err != nil {
				errs[i] = err
				continue
			}
			batch[i].Merge("embedding", vec)
		}
		return errs
	})
}

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hark/apps/backend/internal/pipeline"
)

const KindWeaviate = "weaviate"

func init() { register[WeaviateConfig](KindWeaviate) }

// recordNamespace scopes the deterministic object ids of indexed records.
var recordNamespace = uuid.MustParse("6f1c4d4e-8a1b-4c5e-9a55-4b7f0e2d7c11")

type WeaviateConfig struct {
	Type      string `json:"type"`
	VectorKey string `json:"vector_key,omitempty"`
}

func (c *WeaviateConfig) Kind() string    { return KindWeaviate }
func (c *WeaviateConfig) Validate() error { return nil }

func (c *WeaviateConfig) vectorKey() string {
	if c.VectorKey == "" {
		return "embedding"
	}
	return c.VectorKey
}

// RecordIndex stores records as objects in the search index.
type RecordIndex interface {
	UpsertRecord(ctx context.Context, id string, props map[string]any, vector []float32) (created bool, err error)
}

// ObjectID derives the index id of a record from its natural key, so
// redelivery hits the same object.
func ObjectID(r pipeline.Record) string {
	return uuid.NewSHA1(recordNamespace, []byte(r.Key())).String()
}

type indexConvertor struct {
	now func() time.Time
}

func (c indexConvertor) Convert(r pipeline.Record) (map[string]any, error) {
	segmented, err := json.Marshal(r.SegmentedData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode segmented data: %w", err)
	}
	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode meta: %w", err)
	}
	return map[string]any{
		"content":       r.ProcessedText,
		"sourceName":    r.SourceName,
		"recordKey":     r.Key(),
		"segmentedData": string(segmented),
		"meta":          string(meta),
		"indexedAt":     c.now().UTC().Format(time.RFC3339),
	}, nil
}

// Weaviate indexes records with the vector an embedding analyzer attached.
type Weaviate struct {
	index RecordIndex
	now   func() time.Time
}

func NewWeaviate(index RecordIndex) *Weaviate {
	return &Weaviate{index: index, now: time.Now}
}

func (w *Weaviate) Kind() string { return KindWeaviate }

func (w *Weaviate) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[WeaviateConfig](KindWeaviate, cfg)
	if err != nil {
		return nil, err
	}
	conv := indexConvertor{now: w.now}

	return deliverEach(ctx, KindWeaviate, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		props, err := conv.Convert(r)
		if err != nil {
			return "", err
		}
		created, err := w.index.UpsertRecord(ctx, ObjectID(r), props, vectorOf(r, c.vectorKey()))
		if err != nil {
			return "", err
		}
		if created {
			return StatusCreated, nil
		}
		return StatusUpdated, nil
	})
}

// vectorOf reads the vector stored under key, accepting the shape the
// embedding analyzer writes and the shape a JSON round trip produces.
func vectorOf(r pipeline.Record, key string) []float32 {
	switch v := r.SegmentedData[key].(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, x := range v {
			f, ok := x.(float64)
			if !ok {
				return nil
			}
			out = append(out, float32(f))
		}
		return out
	}
	return nil
}

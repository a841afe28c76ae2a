package analyzer

import (
	"context"
	"maps"

	"hark/apps/backend/internal/pipeline"
)

const KindDummy = "dummy"

func init() { register[DummyConfig](KindDummy) }

type DummyConfig struct {
	Type      string         `json:"type"`
	DummyData map[string]any `json:"dummy_data,omitempty"`
	Batching
}

func (c *DummyConfig) Kind() string    { return KindDummy }
func (c *DummyConfig) Validate() error { return c.Batching.validate(KindDummy) }

// Dummy attaches static data to every record. It is the pass-through analyzer
// for workflows that only move data.
type Dummy struct{}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Kind() string { return KindDummy }

func (d *Dummy) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[DummyConfig](KindDummy, cfg)
	if err != nil {
		return nil, err
	}
	return runBatched(ctx, KindDummy, records, c.size(), func(_ context.Context, batch []pipeline.Record) []error {
		for i := range batch {
			data := maps.Clone(c.DummyData)
			if data == nil {
				data = map[string]any{}
			}
			batch[i].Merge("dummy_data", data)
		}
		return nil
	})
}

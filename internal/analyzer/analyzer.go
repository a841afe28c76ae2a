package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"hark/apps/backend/internal/pipeline"
)

const DefaultBatchSize = 64

// Config is a validated analyzer configuration. Its Kind selects the analyzer.
type Config interface {
	Kind() string
	Validate() error
}

// Analyzer enriches records. Non-aggregating analyzers return exactly one
// record per input, in input order.
type Analyzer interface {
	Kind() string
	Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error)
}

// TextModel is the generative model analyzers delegate to. GenerateJSON sends
// the prompt and decodes the JSON answer into out.
type TextModel interface {
	GenerateJSON(ctx context.Context, prompt string, out any) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var configs = pipeline.NewRegistry[Config]("analyzer")

func register[C any, PC interface {
	*C
	Config
}](kind string) {
	configs.Register(kind, func(raw json.RawMessage) (Config, error) {
		c := PC(new(C))
		if err := pipeline.DecodeJSON(kind, raw, c); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	})
}

func DecodeConfig(raw json.RawMessage) (Config, error) {
	return configs.Decode(raw)
}

func Kinds() []string {
	return configs.Kinds()
}

type Registry struct {
	analyzers map[string]Analyzer
}

func NewRegistry(as ...Analyzer) *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer, len(as))}
	for _, a := range as {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Analyzer) {
	r.analyzers[a.Kind()] = a
}

func (r *Registry) For(cfg Config) (Analyzer, error) {
	a, ok := r.analyzers[cfg.Kind()]
	if !ok {
		return nil, pipeline.InvalidField("analyzer", "type", fmt.Sprintf("no analyzer for %q", cfg.Kind()))
	}
	return a, nil
}

// Batching is embedded by every config that processes records in batches.
type Batching struct {
	BatchSize int `json:"batch_size,omitempty"`
}

func (b Batching) size() int {
	if b.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return b.BatchSize
}

func (b Batching) validate(kind string) error {
	if b.BatchSize < 0 {
		return pipeline.InvalidField(kind, "batch_size", "must not be negative")
	}
	return nil
}

// enrichFunc enriches one batch in place and returns one error slot per
// record; a record whose slot is non-nil must be left untouched.
type enrichFunc func(ctx context.Context, batch []pipeline.Record) []error

// runBatched clones the input, feeds it to fn in batches and tolerates
// per-record failures. Order and length are preserved.
func runBatched(ctx context.Context, kind string, records []pipeline.Record, size int, fn enrichFunc) ([]pipeline.Record, error) {
	out := make([]pipeline.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}

	failed := 0
	for start := 0; start < len(out); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, len(out))
		errs := fn(ctx, out[start:end])
		for i, err := range errs {
			if err != nil {
				failed++
				slog.WarnContext(ctx, "analysis failed for record", "analyzer", kind, "index", start+i, "error", err)
			}
		}
	}

	if failed > 0 {
		slog.WarnContext(ctx, "analyzer finished with failures", "analyzer", kind, "failed", failed, "total", len(out))
	}
	return out, nil
}

// fill returns a slice of n copies of err.
func fill(n int, err error) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = err
	}
	return errs
}

func configFor[C any](kind string, cfg Config) (*C, error) {
	if cfg == nil {
		return nil, &pipeline.ConfigError{Component: kind, Reason: "analyzer config is missing"}
	}
	c, ok := any(cfg).(*C)
	if !ok {
		return nil, pipeline.InvalidField(kind, "type", fmt.Sprintf("unexpected config %T", cfg))
	}
	return c, nil
}

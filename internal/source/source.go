package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/pipeline"
)

// Config is a validated source configuration. Its Kind selects the connector.
type Config interface {
	Kind() string
	Validate() error
}

// Batch is the outcome of one fetch pass.
type Batch struct {
	Records    []pipeline.Record
	Checkpoint pipeline.Checkpoint
}

// Connector performs one incremental fetch pass. Fetch is pure with respect to
// state: it reads prev and returns the next checkpoint without persisting it.
type Connector interface {
	Kind() string
	Fetch(ctx context.Context, cfg Config, prev pipeline.Checkpoint) (*Batch, error)
}

var configs = pipeline.NewRegistry[Config]("source")

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

// DecodeConfig decodes a tagged source config, failing with a configuration
// error when a mandatory field is missing.
func DecodeConfig(raw json.RawMessage) (Config, error) {
	return configs.Decode(raw)
}

func Kinds() []string {
	return configs.Kinds()
}

// Registry resolves a config to the connector able to serve it.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(cs ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(cs))}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c Connector) {
	r.connectors[c.Kind()] = c
}

func (r *Registry) For(cfg Config) (Connector, error) {
	c, ok := r.connectors[cfg.Kind()]
	if !ok {
		return nil, pipeline.InvalidField("source", "type", fmt.Sprintf("no connector for %q", cfg.Kind()))
	}
	return c, nil
}

// Lookup runs one pass of the incremental protocol: read the checkpoint, fetch,
// write the checkpoint back. Without a workflow id the pass is stateless and
// the store is never touched.
func Lookup(ctx context.Context, conn Connector, store checkpoint.Store, cfg Config, workflowID string) ([]pipeline.Record, error) {
	var prev pipeline.Checkpoint
	if workflowID != "" {
		var err error
		prev, err = store.Get(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
	}

	batch, err := conn.Fetch(ctx, cfg, prev)
	if err != nil {
		return nil, err
	}

	if workflowID != "" {
		if err := store.Put(ctx, workflowID, batch.Checkpoint); err != nil {
			return nil, fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	slog.InfoContext(ctx, "source lookup finished", "source", conn.Kind(), "workflow_id", workflowID, "records", len(batch.Records))
	if batch.Records == nil {
		return []pipeline.Record{}, nil
	}
	return batch.Records, nil
}

// base carries the collaborators every HTTP connector shares.
type base struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

type Option func(*base)

func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.client = c }
}

// WithBaseURL points a connector at a different API host, mostly for tests.
func WithBaseURL(u string) Option {
	return func(b *base) { b.baseURL = u }
}

func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

func newBase(defaultURL string, opts []Option) base {
	b := base{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultURL,
		now:     time.Now,
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

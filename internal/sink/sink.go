package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"hark/apps/backend/internal/pipeline"
)

// Config is a validated sink configuration. Its Kind selects the sink.
type Config interface {
	Kind() string
	Validate() error
}

// Sink delivers enriched records. Each record is delivered independently and
// its outcome reported in a DeliveryResult at the same index. A non-nil error
// means the call as a whole failed and nothing can be assumed delivered.
type Sink interface {
	Kind() string
	Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error)
}

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusFailed    Status = "failed"
)

type DeliveryResult struct {
	Key    string `json:"key"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Failed returns the results whose delivery did not succeed.
func Failed(results []DeliveryResult) []DeliveryResult {
	var out []DeliveryResult
	for _, r := range results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Convertor turns a record into the payload a sink sends.
type Convertor interface {
	Convert(r pipeline.Record) (map[string]any, error)
}

// DefaultConvertor merges the record's fields over a static base payload.
type DefaultConvertor struct {
	BasePayload map[string]any
}

func (c DefaultConvertor) Convert(r pipeline.Record) (map[string]any, error) {
	out := maps.Clone(c.BasePayload)
	if out == nil {
		out = make(map[string]any)
	}
	maps.Copy(out, r.Fields())
	return out, nil
}

var configs = pipeline.NewRegistry[Config]("sink")

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
	sinks map[string]Sink
}

func NewRegistry(ss ...Sink) *Registry {
	r := &Registry{sinks: make(map[string]Sink, len(ss))}
	for _, s := range ss {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Sink) {
	r.sinks[s.Kind()] = s
}

func (r *Registry) For(cfg Config) (Sink, error) {
	s, ok := r.sinks[cfg.Kind()]
	if !ok {
		return nil, pipeline.InvalidField("sink", "type", fmt.Sprintf("no sink for %q", cfg.Kind()))
	}
	return s, nil
}

type deliverFunc func(ctx context.Context, r pipeline.Record) (Status, error)

// deliverEach runs fn for every record and collects per-record outcomes.
// Only cancellation aborts the whole call.
func deliverEach(ctx context.Context, kind string, records []pipeline.Record, fn deliverFunc) ([]DeliveryResult, error) {
	results := make([]DeliveryResult, len(records))
	failed := 0
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := r.Key()
		status, err := fn(ctx, r)
		if err != nil {
			failed++
			results[i] = DeliveryResult{Key: key, Status: StatusFailed, Error: err.Error()}
			slog.WarnContext(ctx, "delivery failed", "sink", kind, "key", key, "error", err)
			continue
		}
		results[i] = DeliveryResult{Key: key, Status: status}
	}
	if failed > 0 {
		slog.WarnContext(ctx, "sink finished with failures", "sink", kind, "failed", failed, "total", len(records))
	}
	return results, nil
}

func configFor[C any](kind string, cfg Config) (*C, error) {
	if cfg == nil {
		return nil, &pipeline.ConfigError{Component: kind, Reason: "sink config is missing"}
	}
	c, ok := any(cfg).(*C)
	if !ok {
		return nil, pipeline.InvalidField(kind, "type", fmt.Sprintf("unexpected config %T", cfg))
	}
	return c, nil
}

// httpBase is shared by the sinks that talk HTTP.
type httpBase struct {
	client *http.Client
}

type Option func(*httpBase)

func WithHTTPClient(c *http.Client) Option {
	return func(b *httpBase) { b.client = c }
}

func newHTTPBase(opts []Option) httpBase {
	b := httpBase{client: &http.Client{Timeout: 15 * time.Second}}
	for _, o := range opts {
		o(&b)
	}
	return b
}

package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"hark/apps/backend/internal/pipeline"
)

const KindChain = "chain"

func init() { register[ChainConfig](KindChain) }

// ChainConfig runs several analyzers in order, each seeing the output of the
// previous one.
type ChainConfig struct {
	Type  string            `json:"type"`
	Steps []json.RawMessage `json:"steps"`

	decoded []Config
}

func (c *ChainConfig) Kind() string { return KindChain }

func (c *ChainConfig) Validate() error {
	if len(c.Steps) == 0 {
		return pipeline.MissingField(KindChain, "steps")
	}
	c.decoded = make([]Config, 0, len(c.Steps))
	for i, raw := range c.Steps {
		step, err := DecodeConfig(raw)
		if err != nil {
			return fmt.Errorf("chain step %d: %w", i, err)
		}
		if step.Kind() == KindChain {
			return pipeline.InvalidField(KindChain, "steps", "chains cannot be nested")
		}
		c.decoded = append(c.decoded, step)
	}
	return nil
}

func (c *ChainConfig) StepConfigs() []Config {
	return c.decoded
}

type Chain struct {
	registry *Registry
}

// NewChain registers itself in r so steps resolve against the same analyzers.
func NewChain(r *Registry) *Chain {
	ch := &Chain{registry: r}
	r.Register(ch)
	return ch
}

func (c *Chain) Kind() string { return KindChain }

func (c *Chain) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	cc, err := configFor[ChainConfig](KindChain, cfg)
	if err != nil {
		return nil, err
	}
	out := records
	for i, step := range cc.decoded {
		a, err := c.registry.For(step)
		if err != nil {
			return nil, err
		}
		out, err = a.Analyze(ctx, out, step)
		if err != nil {
			return nil, fmt.Errorf("chain step %d (%s): %w", i, step.Kind(), err)
		}
	}
	return out, nil
}

package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hark/apps/backend/internal/analyzer"
	"hark/apps/backend/internal/pipeline"
	"hark/apps/backend/internal/sink"
	"hark/apps/backend/internal/source"
)

var ErrNotFound = errors.New("workflow not found")

// Config holds the tagged component configs as submitted. It is replaced
// wholesale on update, never patched.
type Config struct {
	Source   json.RawMessage `json:"source,omitempty"`
	Analyzer json.RawMessage `json:"analyzer,omitempty"`
	Sink     json.RawMessage `json:"sink,omitempty"`
}

type Workflow struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Config          Config     `json:"config"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Pipeline is the decoded form of Config. A nil part was not configured.
type Pipeline struct {
	Source   source.Config
	Analyzer analyzer.Config
	Sink     sink.Config
}

// Runnable reports whether a pass can do anything useful.
func (p *Pipeline) Runnable() bool {
	return p.Source != nil && p.Sink != nil
}

// Decode validates every configured part through its registry.
func (c Config) Decode() (*Pipeline, error) {
	var (
		p   Pipeline
		err error
	)
	if !pipeline.IsEmpty(c.Source) {
		if p.Source, err = source.DecodeConfig(c.Source); err != nil {
			return nil, err
		}
	}
	if !pipeline.IsEmpty(c.Analyzer) {
		if p.Analyzer, err = analyzer.DecodeConfig(c.Analyzer); err != nil {
			return nil, err
		}
	}
	if !pipeline.IsEmpty(c.Sink) {
		if p.Sink, err = sink.DecodeConfig(c.Sink); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// Validate checks the fields a stored workflow must carry.
func (w *Workflow) Validate() (*Pipeline, error) {
	if strings.TrimSpace(w.Name) == "" {
		return nil, pipeline.MissingField("workflow", "name")
	}
	if w.IntervalSeconds < 0 {
		return nil, pipeline.InvalidField("workflow", "interval_seconds", "must not be negative")
	}
	p, err := w.Config.Decode()
	if err != nil {
		return nil, fmt.Errorf("invalid workflow config: %w", err)
	}
	return p, nil
}

// RunTask asks a worker to run one pass of a workflow.
type RunTask struct {
	WorkflowID    string    `json:"workflow_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

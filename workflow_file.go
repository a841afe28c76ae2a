package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/pipeline"
)

// workflowFile is a workflow definition kept on disk. The component blocks
// use the same tagged form the REST API accepts.
type workflowFile struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Source   map[string]any `yaml:"source"`
	Analyzer map[string]any `yaml:"analyzer"`
	Sink     map[string]any `yaml:"sink"`
}

func loadWorkflowFile(path string) (*workflowFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return parseWorkflowFile(b)
}

func parseWorkflowFile(b []byte) (*workflowFile, error) {
	var wf workflowFile
	if err := yaml.Unmarshal(b, &wf); err != nil {
		return nil, &pipeline.ConfigError{Component: "workflow", Reason: "invalid yaml: " + err.Error()}
	}
	return &wf, nil
}

// stateKey names the checkpoint a stateful run reads and writes.
func (f *workflowFile) stateKey() string {
	if f.ID != "" {
		return f.ID
	}
	return strings.TrimSpace(f.Name)
}

func (f *workflowFile) config() (workflow.Config, error) {
	var (
		c   workflow.Config
		err error
	)
	if c.Source, err = rawBlock(f.Source); err != nil {
		return c, err
	}
	if c.Analyzer, err = rawBlock(f.Analyzer); err != nil {
		return c, err
	}
	if c.Sink, err = rawBlock(f.Sink); err != nil {
		return c, err
	}
	return c, nil
}

// pipeline decodes every block through its registry.
func (f *workflowFile) pipeline() (*workflow.Pipeline, error) {
	c, err := f.config()
	if err != nil {
		return nil, err
	}
	return c.Decode()
}

func rawBlock(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, &pipeline.ConfigError{Component: "workflow", Reason: err.Error()}
	}
	return b, nil
}

package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindSentiment      = "sentiment"
	KindClassification = "classification"
)

func init() {
	register[SentimentConfig](KindSentiment)
	register[ClassificationConfig](KindClassification)
}

type SentimentConfig struct {
	Type           string `json:"type"`
	IncludeNeutral bool   `json:"include_neutral,omitempty"`
	Batching
}

func (c *SentimentConfig) Kind() string    { return KindSentiment }
func (c *SentimentConfig) Validate() error { return c.Batching.validate(KindSentiment) }

func (c *SentimentConfig) labels() []string {
	if c.IncludeNeutral {
		return []string{"positive", "negative", "neutral"}
	}
	return []string{"positive", "negative"}
}

// ClassificationConfig drives zero-shot classification against caller
// supplied labels.
type ClassificationConfig struct {
	Type       string   `json:"type"`
	Labels     []string `json:"labels"`
	MultiLabel bool     `json:"multi_label,omitempty"`
	Batching
}

func (c *ClassificationConfig) Kind() string { return KindClassification }

func (c *ClassificationConfig) Validate() error {
	if len(c.Labels) == 0 {
		return pipeline.MissingField(KindClassification, "labels")
	}
	seen := make(map[string]struct{}, len(c.Labels))
	for _, l := range c.Labels {
		if strings.TrimSpace(l) == "" {
			return pipeline.InvalidField(KindClassification, "labels", "contains an empty label")
		}
		if _, dup := seen[l]; dup {
			return pipeline.InvalidField(KindClassification, "labels", fmt.Sprintf("duplicate label %q", l))
		}
		seen[l] = struct{}{}
	}
	return c.Batching.validate(KindClassification)
}

// Classifier scores records against a label set with a TextModel. It serves
// both sentiment and zero-shot classification.
type Classifier struct {
	kind  string
	model TextModel
}

func NewSentiment(model TextModel) *Classifier {
	return &Classifier{kind: KindSentiment, model: model}
}

func NewClassification(model TextModel) *Classifier {
	return &Classifier{kind: KindClassification, model: model}
}

func (c *Classifier) Kind() string { return c.kind }

func (c *Classifier) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	var (
		labels     []string
		multiLabel bool
		size       int
		key        string
	)
	switch c.kind {
	case KindSentiment:
		sc, err := configFor[SentimentConfig](c.kind, cfg)
		if err != nil {
			return nil, err
		}
		labels, size, key = sc.labels(), sc.size(), "sentiment"
	default:
		cc, err := configFor[ClassificationConfig](c.kind, cfg)
		if err != nil {
			return nil, err
		}
		labels, multiLabel, size, key = cc.Labels, cc.MultiLabel, cc.size(), "classifier"
	}

	return runBatched(ctx, c.kind, records, size, func(ctx context.Context, batch []pipeline.Record) []error {
		scores, err := c.score(ctx, batch, labels, multiLabel)
		if err != nil {
			return fill(len(batch), err)
		}
		for i := range batch {
			batch[i].Merge(key, scores[i])
		}
		return nil
	})
}

func (c *Classifier) score(ctx context.Context, batch []pipeline.Record, labels []string, multiLabel bool) ([]pipeline.Scores, error) {
	textsJSON, err := json.Marshal(texts(batch))
	if err != nil {
		return nil, err
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}

	rule := "Scores for one text must sum to 1."
	if multiLabel {
		rule = "Score each label independently between 0 and 1."
	}
	prompt := fmt.Sprintf(`Classify each text in the JSON array below against the labels %s.
%s
Answer with a JSON array holding exactly one object per text, in the same order, mapping every label to its score.
Texts: %s`, labelsJSON, rule, textsJSON)

	var raw []map[string]float64
	if err := c.model.GenerateJSON(ctx, prompt, &raw); err != nil {
		return nil, err
	}
	if len(raw) != len(batch) {
		return nil, fmt.Errorf("model returned %d results for %d texts", len(raw), len(batch))
	}

	out := make([]pipeline.Scores, len(raw))
	for i, m := range raw {
		filtered := make(map[string]float64, len(labels))
		for _, l := range labels {
			filtered[l] = m[l]
		}
		out[i] = pipeline.NewScores(filtered)
	}
	return out, nil
}

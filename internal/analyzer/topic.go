package analyzer

import (
	"context"
	"encoding/json"
	"fmt"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindTopic = "topic"

	defaultTopicCount = 5
)

func init() { register[TopicConfig](KindTopic) }

// TopicConfig configures topic discovery. With Aggregate set the analyzer
// collapses its whole input into a single summary record.
type TopicConfig struct {
	Type      string `json:"type"`
	NumTopics int    `json:"num_topics,omitempty"`
	Aggregate bool   `json:"aggregate,omitempty"`
}

func (c *TopicConfig) Kind() string { return KindTopic }

func (c *TopicConfig) Validate() error {
	if c.NumTopics < 0 {
		return pipeline.InvalidField(KindTopic, "num_topics", "must not be negative")
	}
	return nil
}

type Topic struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
	Members  []int    `json:"members"`
}

// TopicModel discovers topics across all records of a pass in one model call.
type TopicModel struct {
	model TextModel
}

func NewTopicModel(model TextModel) *TopicModel { return &TopicModel{model: model} }

func (t *TopicModel) Kind() string { return KindTopic }

func (t *TopicModel) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[TopicConfig](KindTopic, cfg)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []pipeline.Record{}, nil
	}
	n := c.NumTopics
	if n == 0 {
		n = defaultTopicCount
	}

	textsJSON, err := json.Marshal(texts(records))
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`Group the texts in the JSON array below into at most %d topics.
Answer with a JSON array of objects {"label": string, "keywords": [string], "members": [index of each text in the topic]}.
Texts: %s`, n, textsJSON)

	var topics []Topic
	if err := t.model.GenerateJSON(ctx, prompt, &topics); err != nil {
		return nil, fmt.Errorf("topic discovery failed: %w", err)
	}

	if c.Aggregate {
		keys := make([]string, len(records))
		for i, r := range records {
			keys[i] = r.Key()
		}
		summary := pipeline.Record{
			ProcessedText: fmt.Sprintf("%d topics over %d records", len(topics), len(records)),
			SourceName:    KindTopic,
			Meta:          map[string]any{"record_count": len(records), "record_keys": keys},
		}
		summary.Merge("topics", topics)
		return []pipeline.Record{summary}, nil
	}

	out := make([]pipeline.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	for _, tp := range topics {
		for _, idx := range tp.Members {
			if idx < 0 || idx >= len(out) {
				continue
			}
			out[idx].Merge("topic", map[string]any{"label": tp.Label, "keywords": tp.Keywords})
		}
	}
	return out, nil
}

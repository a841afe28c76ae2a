package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindNER       = "ner"
	KindTranslate = "translate"
)

func init() {
	register[NERConfig](KindNER)
	register[TranslateConfig](KindTranslate)
}

type NERConfig struct {
	Type   string   `json:"type"`
	Labels []string `json:"labels,omitempty"`
	Batching
}

func (c *NERConfig) Kind() string    { return KindNER }
func (c *NERConfig) Validate() error { return c.Batching.validate(KindNER) }

type TranslateConfig struct {
	Type                string `json:"type"`
	TargetLanguage      string `json:"target_language"`
	SourceLanguage      string `json:"source_language,omitempty"`
	ReplaceOriginalText bool   `json:"replace_original_text,omitempty"`
	Batching
}

func (c *TranslateConfig) Kind() string { return KindTranslate }

func (c *TranslateConfig) Validate() error {
	if strings.TrimSpace(c.TargetLanguage) == "" {
		return pipeline.MissingField(KindTranslate, "target_language")
	}
	return c.Batching.validate(KindTranslate)
}

type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// NER extracts named entities with a TextModel.
type NER struct {
	model TextModel
}

func NewNER(model TextModel) *NER { return &NER{model: model} }

func (n *NER) Kind() string { return KindNER }

func (n *NER) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[NERConfig](KindNER, cfg)
	if err != nil {
		return nil, err
	}
	labels := c.Labels
	if len(labels) == 0 {
		labels = []string{"PERSON", "ORGANIZATION", "LOCATION", "PRODUCT"}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("ner labels: %w", err)
	}

	return runBatched(ctx, KindNER, records, c.size(), func(ctx context.Context, batch []pipeline.Record) []error {
		textsJSON, err := json.Marshal(texts(batch))
		if err != nil {
			return fill(len(batch), err)
		}
		prompt := fmt.Sprintf(`Extract named entities of the types %s from each text in the JSON array below.
Answer with a JSON array holding one array per text, in the same order, of objects {"text": ..., "label": ...}.
Texts: %s`, labelsJSON, textsJSON)

		var raw [][]Entity
		if err := n.model.GenerateJSON(ctx, prompt, &raw); err != nil {
			return fill(len(batch), err)
		}
		if len(raw) != len(batch) {
			return fill(len(batch), fmt.Errorf("model returned %d results for %d texts", len(raw), len(batch)))
		}
		for i := range batch {
			ents := raw[i]
			if ents == nil {
				ents = []Entity{}
			}
			batch[i].Merge("ner", ents)
		}
		return nil
	})
}

// Translator translates record text with a TextModel.
type Translator struct {
	model TextModel
}

func NewTranslator(model TextModel) *Translator { return &Translator{model: model} }

func (t *Translator) Kind() string { return KindTranslate }

func (t *Translator) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[TranslateConfig](KindTranslate, cfg)
	if err != nil {
		return nil, err
	}
	from := "the detected language"
	if c.SourceLanguage != "" {
		from = c.SourceLanguage
	}

	return runBatched(ctx, KindTranslate, records, c.size(), func(ctx context.Context, batch []pipeline.Record) []error {
		textsJSON, err := json.Marshal(texts(batch))
		if err != nil {
			return fill(len(batch), err)
		}
		prompt := fmt.Sprintf(`Translate each text in the JSON array below from %s to %s.
Answer with a JSON array of translated strings, one per text, in the same order.
Texts: %s`, from, c.TargetLanguage, textsJSON)

		var translated []string
		if err := t.model.GenerateJSON(ctx, prompt, &translated); err != nil {
			return fill(len(batch), err)
		}
		if len(translated) != len(batch) {
			return fill(len(batch), fmt.Errorf("model returned %d results for %d texts", len(translated), len(batch)))
		}
		for i := range batch {
			batch[i].Merge("translation", map[string]any{
				"text":          translated[i],
				"original_text": batch[i].ProcessedText,
				"target":        c.TargetLanguage,
			})
			if c.ReplaceOriginalText {
				batch[i].ProcessedText = translated[i]
			}
		}
		return nil
	})
}

func texts(batch []pipeline.Record) []string {
	out := make([]string, len(batch))
	for i, r := range batch {
		out[i] = r.ProcessedText
	}
	return out
}

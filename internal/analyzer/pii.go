package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const KindPII = "pii"

func init() { register[PIIConfig](KindPII) }

var piiPatterns = map[string]*regexp.Regexp{
	"EMAIL_ADDRESS": regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	"CREDIT_CARD":   regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
	"PHONE_NUMBER":  regexp.MustCompile(`(?:\+\d{1,3}[ \-.]?)?(?:\(\d{2,4}\)[ \-.]?)?\d{3,4}[ \-.]\d{3,4}(?:[ \-.]\d{2,4})?`),
	"IP_ADDRESS":    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
	"URL":           regexp.MustCompile(`https?://[^\s]+`),
}

// piiOrder resolves overlapping matches: earlier types win.
var piiOrder = []string{"EMAIL_ADDRESS", "URL", "CREDIT_CARD", "IP_ADDRESS", "PHONE_NUMBER"}

type PIIConfig struct {
	Type                string   `json:"type"`
	Entities            []string `json:"entities,omitempty"`
	ReplaceOriginalText bool     `json:"replace_original_text,omitempty"`
	Batching
}

func (c *PIIConfig) Kind() string { return KindPII }

func (c *PIIConfig) Validate() error {
	for _, e := range c.Entities {
		if _, ok := piiPatterns[e]; !ok {
			return pipeline.InvalidField(KindPII, "entities", fmt.Sprintf("unsupported entity %q", e))
		}
	}
	return c.Batching.validate(KindPII)
}

func (c *PIIConfig) entities() []string {
	if len(c.Entities) == 0 {
		return piiOrder
	}
	want := make(map[string]bool, len(c.Entities))
	for _, e := range c.Entities {
		want[e] = true
	}
	var out []string
	for _, e := range piiOrder {
		if want[e] {
			out = append(out, e)
		}
	}
	return out
}

type PIISpan struct {
	Entity string `json:"entity"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// PII detects and masks personal data with pattern matching.
type PII struct{}

func NewPII() *PII { return &PII{} }

func (p *PII) Kind() string { return KindPII }

func (p *PII) Analyze(ctx context.Context, records []pipeline.Record, cfg Config) ([]pipeline.Record, error) {
	c, err := configFor[PIIConfig](KindPII, cfg)
	if err != nil {
		return nil, err
	}
	entities := c.entities()

	return runBatched(ctx, KindPII, records, c.size(), func(_ context.Context, batch []pipeline.Record) []error {
		for i := range batch {
			spans := detectPII(batch[i].ProcessedText, entities)
			anonymized := maskPII(batch[i].ProcessedText, spans)
			batch[i].Merge("pii", map[string]any{
				"entities":        spans,
				"anonymized_text": anonymized,
			})
			if c.ReplaceOriginalText {
				batch[i].ProcessedText = anonymized
			}
		}
		return nil
	})
}

func detectPII(text string, entities []string) []PIISpan {
	var spans []PIISpan
	taken := func(start, end int) bool {
		for _, s := range spans {
			if start < s.End && end > s.Start {
				return true
			}
		}
		return false
	}
	for _, e := range entities {
		for _, loc := range piiPatterns[e].FindAllStringIndex(text, -1) {
			if !taken(loc[0], loc[1]) {
				spans = append(spans, PIISpan{Entity: e, Start: loc[0], End: loc[1]})
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	if spans == nil {
		spans = []PIISpan{}
	}
	return spans
}

func maskPII(text string, spans []PIISpan) string {
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.Start])
		b.WriteString("<" + s.Entity + ">")
		last = s.End
	}
	b.WriteString(text[last:])
	return b.String()
}

package sink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindSlack = "slack"

	slackTextLimit = 3000
)

func init() { register[SlackConfig](KindSlack) }

type SlackConfig struct {
	Type       string `json:"type"`
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel,omitempty"`
	Username   string `json:"username,omitempty"`
	IconEmoji  string `json:"icon_emoji,omitempty"`
}

func (c *SlackConfig) Kind() string { return KindSlack }

func (c *SlackConfig) Validate() error {
	return validateURL(KindSlack, "webhook_url", c.WebhookURL)
}

// slackConvertor renders a record as an incoming-webhook message.
type slackConvertor struct {
	cfg *SlackConfig
}

func (c slackConvertor) Convert(r pipeline.Record) (map[string]any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", r.SourceName)
	if u, ok := r.Meta["url"].(string); ok && u != "" {
		fmt.Fprintf(&b, " <%s|link>", u)
	}
	b.WriteString("\n")
	b.WriteString(truncate(r.ProcessedText, slackTextLimit))

	for _, key := range sortedKeys(r.SegmentedData) {
		scores, ok := r.SegmentedData[key].(pipeline.Scores)
		if !ok {
			continue
		}
		if top, ok := scores.Top(); ok {
			fmt.Fprintf(&b, "\n_%s_: %s (%.2f)", key, top.Label, top.Value)
		}
	}

	msg := map[string]any{"text": b.String()}
	if c.cfg.Channel != "" {
		msg["channel"] = c.cfg.Channel
	}
	if c.cfg.Username != "" {
		msg["username"] = c.cfg.Username
	}
	if c.cfg.IconEmoji != "" {
		msg["icon_emoji"] = c.cfg.IconEmoji
	}
	return msg, nil
}

// Slack posts one chat message per record through an incoming webhook.
type Slack struct {
	httpBase
}

func NewSlack(opts ...Option) *Slack {
	return &Slack{httpBase: newHTTPBase(opts)}
}

func (s *Slack) Kind() string { return KindSlack }

func (s *Slack) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[SlackConfig](KindSlack, cfg)
	if err != nil {
		return nil, err
	}
	conv := slackConvertor{cfg: c}

	return deliverEach(ctx, KindSlack, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		msg, err := conv.Convert(r)
		if err != nil {
			return "", err
		}
		if err := s.doJSON(ctx, KindSlack, "POST", c.WebhookURL, nil, msg, nil); err != nil {
			return "", err
		}
		return StatusDelivered, nil
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

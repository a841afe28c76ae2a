package sink

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zeebo/xxh3"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindJira = "jira"

	jiraSummaryLimit = 250
)

func init() { register[JiraConfig](KindJira) }

type JiraConfig struct {
	Type       string   `json:"type"`
	URL        string   `json:"url"`
	Email      string   `json:"email"`
	APIToken   string   `json:"api_token"`
	ProjectKey string   `json:"project_key"`
	IssueType  string   `json:"issue_type,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

func (c *JiraConfig) Kind() string { return KindJira }

func (c *JiraConfig) Validate() error {
	if err := validateURL(KindJira, "url", c.URL); err != nil {
		return err
	}
	for field, v := range map[string]string{"email": c.Email, "api_token": c.APIToken, "project_key": c.ProjectKey} {
		if strings.TrimSpace(v) == "" {
			return pipeline.MissingField(KindJira, field)
		}
	}
	return nil
}

func (c *JiraConfig) issueType() string {
	if c.IssueType == "" {
		return "Task"
	}
	return c.IssueType
}

func (c *JiraConfig) headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	return map[string]string{"Authorization": "Basic " + token}
}

// issueLabel is the label that ties an issue to a record across passes.
func issueLabel(r pipeline.Record) string {
	return fmt.Sprintf("hark-%016x", xxh3.HashString(r.Key()))
}

type jiraConvertor struct {
	cfg *JiraConfig
}

func (c jiraConvertor) Convert(r pipeline.Record) (map[string]any, error) {
	summary := strings.Join(strings.Fields(r.ProcessedText), " ")
	if summary == "" {
		summary = r.Key()
	}
	summary = truncate(fmt.Sprintf("[%s] %s", r.SourceName, summary), jiraSummaryLimit)

	var desc strings.Builder
	desc.WriteString(r.ProcessedText)
	if u, ok := r.Meta["url"].(string); ok && u != "" {
		fmt.Fprintf(&desc, "\n\nSource: %s", u)
	}
	for _, key := range sortedKeys(r.SegmentedData) {
		fmt.Fprintf(&desc, "\n%s: %v", key, r.SegmentedData[key])
	}

	labels := append([]string{issueLabel(r)}, c.cfg.Labels...)
	return map[string]any{
		"project":     map[string]any{"key": c.cfg.ProjectKey},
		"issuetype":   map[string]any{"name": c.cfg.issueType()},
		"summary":     summary,
		"description": desc.String(),
		"labels":      labels,
	}, nil
}

// Jira keeps one issue per record. An issue carrying the record's label is
// updated in place, otherwise a new issue is created.
type Jira struct {
	httpBase
}

func NewJira(opts ...Option) *Jira {
	return &Jira{httpBase: newHTTPBase(opts)}
}

func (j *Jira) Kind() string { return KindJira }

func (j *Jira) Send(ctx context.Context, records []pipeline.Record, cfg Config) ([]DeliveryResult, error) {
	c, err := configFor[JiraConfig](KindJira, cfg)
	if err != nil {
		return nil, err
	}
	conv := jiraConvertor{cfg: c}
	base := strings.TrimRight(c.URL, "/")

	return deliverEach(ctx, KindJira, records, func(ctx context.Context, r pipeline.Record) (Status, error) {
		fields, err := conv.Convert(r)
		if err != nil {
			return "", err
		}

		existing, err := j.findIssue(ctx, base, c, issueLabel(r))
		if err != nil {
			return "", err
		}
		if existing != "" {
			update := map[string]any{"fields": map[string]any{
				"summary":     fields["summary"],
				"description": fields["description"],
			}}
			if err := j.doJSON(ctx, KindJira, http.MethodPut, base+"/rest/api/2/issue/"+url.PathEscape(existing), c.headers(), update, nil); err != nil {
				return "", err
			}
			return StatusUpdated, nil
		}

		var created struct {
			Key string `json:"key"`
		}
		if err := j.doJSON(ctx, KindJira, http.MethodPost, base+"/rest/api/2/issue", c.headers(), map[string]any{"fields": fields}, &created); err != nil {
			return "", err
		}
		return StatusCreated, nil
	})
}

func (j *Jira) findIssue(ctx context.Context, base string, c *JiraConfig, label string) (string, error) {
	q := url.Values{}
	q.Set("jql", fmt.Sprintf(`project = "%s" AND labels = "%s"`, c.ProjectKey, label))
	q.Set("fields", "key")
	q.Set("maxResults", "1")

	var res struct {
		Issues []struct {
			Key string `json:"key"`
		} `json:"issues"`
	}
	if err := j.doJSON(ctx, KindJira, http.MethodGet, base+"/rest/api/2/search?"+q.Encode(), c.headers(), nil, &res); err != nil {
		return "", err
	}
	if len(res.Issues) == 0 {
		return "", nil
	}
	return res.Issues[0].Key, nil
}

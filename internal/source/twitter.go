package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindTwitter = "twitter"

	twitterURL        = "https://api.twitter.com"
	twitterMaxResults = 100
	twitterMinResults = 10

	// recent search only serves the last seven days; older start_time values
	// are rejected
	twitterSearchWindow = 7 * 24 * time.Hour
	twitterWindowSlack  = time.Minute
)

func init() { register[TwitterConfig](KindTwitter) }

type TwitterConfig struct {
	Type         string `json:"type"`
	Query        string `json:"query"`
	BearerToken  string `json:"bearer_token"`
	LookupPeriod string `json:"lookup_period,omitempty"`
	MaxCount     int    `json:"max_count,omitempty"`
}

func (c *TwitterConfig) Kind() string { return KindTwitter }

func (c *TwitterConfig) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return pipeline.MissingField(KindTwitter, "query")
	}
	if c.BearerToken == "" {
		return pipeline.MissingField(KindTwitter, "bearer_token")
	}
	if c.MaxCount < 0 {
		return pipeline.InvalidField(KindTwitter, "max_count", "must not be negative")
	}
	return pipeline.ValidateLookback(KindTwitter, c.LookupPeriod)
}

// Twitter runs the recent-search endpoint bounded by start_time. The
// recorded since_id stays local; upstream rejects ids older than the window.
type Twitter struct {
	base
}

func NewTwitter(opts ...Option) *Twitter {
	return &Twitter{base: newBase(twitterURL, opts)}
}

func (t *Twitter) Kind() string { return KindTwitter }

type tweet struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	ConversationID string    `json:"conversation_id"`
	Lang           string    `json:"lang"`
	CreatedAt      time.Time `json:"created_at"`
}

type searchResponse struct {
	Data []tweet `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

func (t *Twitter) Fetch(ctx context.Context, cfg Config, prev pipeline.Checkpoint) (*Batch, error) {
	c, ok := cfg.(*TwitterConfig)
	if !ok {
		return nil, pipeline.InvalidField(KindTwitter, "type", fmt.Sprintf("unexpected config %T", cfg))
	}

	cursor := prev.Cursor("")
	tr, err := pipeline.NewTracker(cursor, c.LookupPeriod, t.now())
	if err != nil {
		return nil, err
	}

	pageSize := twitterMaxResults
	if c.MaxCount > 0 && c.MaxCount < pageSize {
		pageSize = max(c.MaxCount, twitterMinResults)
	}

	startTime := searchStart(tr.LowerBound(), t.now()).Format(time.RFC3339)
	headers := map[string]string{"Authorization": "Bearer " + c.BearerToken}
	records := []pipeline.Record{}
	token := ""

pages:
	for {
		q := url.Values{}
		q.Set("query", c.Query)
		q.Set("max_results", fmt.Sprint(pageSize))
		q.Set("tweet.fields", "created_at,author_id,lang,conversation_id")
		q.Set("start_time", startTime)
		if token != "" {
			q.Set("next_token", token)
		}

		var resp searchResponse
		if err := t.getJSON(ctx, KindTwitter, t.baseURL+"/2/tweets/search/recent?"+q.Encode(), headers, &resp); err != nil {
			return nil, err
		}

		for _, tw := range resp.Data {
			switch tr.Observe(tw.ID, tw.CreatedAt) {
			case pipeline.Stop:
				break pages
			case pipeline.Skip:
				continue
			}
			records = append(records, pipeline.Record{
				ProcessedText: tw.Text,
				SourceName:    KindTwitter,
				Meta: map[string]any{
					"id":              tw.ID,
					"author_id":       tw.AuthorID,
					"conversation_id": tw.ConversationID,
					"lang":            tw.Lang,
					"created_at":      tw.CreatedAt.UTC().Format(time.RFC3339),
				},
			})
			if c.MaxCount > 0 && tr.Emitted() >= c.MaxCount {
				break pages
			}
		}

		token = resp.Meta.NextToken
		if token == "" || len(resp.Data) == 0 {
			break
		}
	}

	next := prev.Clone()
	next.SetCursor("", tr.Cursor())
	return &Batch{Records: records, Checkpoint: next}, nil
}

// searchStart clamps the lower bound into the recent-search window. Items
// below the bound are still filtered by the tracker.
func searchStart(lower, now time.Time) time.Time {
	floor := now.UTC().Add(-twitterSearchWindow + twitterWindowSlack)
	if lower.Before(floor) {
		return floor
	}
	return lower.UTC()
}

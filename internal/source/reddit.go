package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindReddit = "reddit"

	redditURL       = "https://www.reddit.com"
	redditPageLimit = 100
	redditUserAgent = "hark/1.0"
)

func init() { register[RedditConfig](KindReddit) }

type RedditConfig struct {
	Type            string   `json:"type"`
	Subreddits      []string `json:"subreddits"`
	IncludeComments bool     `json:"include_comments,omitempty"`
	UserAgent       string   `json:"user_agent,omitempty"`
	LookupPeriod    string   `json:"lookup_period,omitempty"`
	MaxCount        int      `json:"max_count,omitempty"`
}

func (c *RedditConfig) Kind() string { return KindReddit }

func (c *RedditConfig) Validate() error {
	if len(c.Subreddits) == 0 {
		return pipeline.MissingField(KindReddit, "subreddits")
	}
	for _, s := range c.Subreddits {
		if strings.TrimSpace(s) == "" {
			return pipeline.InvalidField(KindReddit, "subreddits", "contains an empty name")
		}
	}
	if c.MaxCount < 0 {
		return pipeline.InvalidField(KindReddit, "max_count", "must not be negative")
	}
	return pipeline.ValidateLookback(KindReddit, c.LookupPeriod)
}

// Reddit reads the newest posts of each subreddit, optionally expanding their
// comment trees into flat records.
type Reddit struct {
	base
}

func NewReddit(opts ...Option) *Reddit {
	return &Reddit{base: newBase(redditURL, opts)}
}

func (r *Reddit) Kind() string { return KindReddit }

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditListing struct {
	Data struct {
		After    string        `json:"after"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type redditComment struct {
	Name       string          `json:"name"`
	ParentID   string          `json:"parent_id"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	Permalink  string          `json:"permalink"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

func unixTime(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}

func (r *Reddit) headers(c *RedditConfig) map[string]string {
	ua := c.UserAgent
	if ua == "" {
		ua = redditUserAgent
	}
	return map[string]string{"User-Agent": ua}
}

func (r *Reddit) Fetch(ctx context.Context, cfg Config, prev pipeline.Checkpoint) (*Batch, error) {
	c, ok := cfg.(*RedditConfig)
	if !ok {
		return nil, pipeline.InvalidField(KindReddit, "type", fmt.Sprintf("unexpected config %T", cfg))
	}

	now := r.now()
	next := prev.Clone()
	records := []pipeline.Record{}

	for _, sub := range c.Subreddits {
		tr, err := pipeline.NewTracker(prev.Cursor(sub), c.LookupPeriod, now)
		if err != nil {
			return nil, err
		}

		var fresh []redditPost
		after := ""
	pages:
		for {
			q := url.Values{}
			q.Set("limit", fmt.Sprint(redditPageLimit))
			q.Set("raw_json", "1")
			if after != "" {
				q.Set("after", after)
			}
			var listing redditListing
			endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", r.baseURL, url.PathEscape(sub), q.Encode())
			if err := r.getJSON(ctx, KindReddit, endpoint, r.headers(c), &listing); err != nil {
				return nil, err
			}

			for _, child := range listing.Data.Children {
				if child.Kind != "t3" {
					continue
				}
				var p redditPost
				if err := json.Unmarshal(child.Data, &p); err != nil {
					continue
				}

				switch tr.Observe(p.Name, unixTime(p.CreatedUTC)) {
				case pipeline.Stop:
					break pages
				case pipeline.Skip:
					continue
				}
				fresh = append(fresh, p)
				if c.MaxCount > 0 && tr.Emitted() >= c.MaxCount {
					break pages
				}
			}

			after = listing.Data.After
			if after == "" || len(listing.Data.Children) == 0 {
				break
			}
		}

		for _, p := range fresh {
			records = append(records, postRecord(p))
			if c.IncludeComments && p.NumComments > 0 {
				comments, err := r.comments(ctx, c, p, tr.LowerBound())
				if err != nil {
					return nil, err
				}
				records = append(records, comments...)
			}
		}

		next.SetCursor(sub, tr.Cursor())
	}

	return &Batch{Records: records, Checkpoint: next}, nil
}

func postRecord(p redditPost) pipeline.Record {
	text := strings.TrimSpace(p.Title)
	if body := strings.TrimSpace(p.Selftext); body != "" {
		text += "\n" + body
	}
	return pipeline.Record{
		ProcessedText: text,
		SourceName:    KindReddit,
		Meta: map[string]any{
			"id":           p.Name,
			"kind":         "post",
			"subreddit":    p.Subreddit,
			"title":        p.Title,
			"author":       p.Author,
			"url":          p.URL,
			"permalink":    p.Permalink,
			"score":        p.Score,
			"num_comments": p.NumComments,
			"created_at":   unixTime(p.CreatedUTC).Format(time.RFC3339),
		},
	}
}

// comments loads the comment tree of a post and flattens every reply newer
// than the lower bound into the record list.
func (r *Reddit) comments(ctx context.Context, c *RedditConfig, p redditPost, lower time.Time) ([]pipeline.Record, error) {
	endpoint := fmt.Sprintf("%s/comments/%s.json?sort=new&raw_json=1", r.baseURL, url.PathEscape(p.ID))
	var listings []redditListing
	if err := r.getJSON(ctx, KindReddit, endpoint, r.headers(c), &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var out []pipeline.Record
	seen := make(map[string]struct{})
	var walk func(children []redditThing)
	walk = func(children []redditThing) {
		for _, child := range children {
			if child.Kind != "t1" {
				continue
			}
			var cm redditComment
			if err := json.Unmarshal(child.Data, &cm); err != nil {
				continue
			}
			if _, dup := seen[cm.Name]; !dup && unixTime(cm.CreatedUTC).After(lower) {
				seen[cm.Name] = struct{}{}
				out = append(out, pipeline.Record{
					ProcessedText: strings.TrimSpace(cm.Body),
					SourceName:    KindReddit,
					Meta: map[string]any{
						"id":         cm.Name,
						"kind":       "comment",
						"post_id":    p.Name,
						"parent_id":  cm.ParentID,
						"subreddit":  p.Subreddit,
						"author":     cm.Author,
						"permalink":  cm.Permalink,
						"score":      cm.Score,
						"created_at": unixTime(cm.CreatedUTC).Format(time.RFC3339),
					},
				})
			}
			// replies is "" when empty, a listing otherwise
			if len(cm.Replies) > 0 && cm.Replies[0] == '{' {
				var nested redditListing
				if err := json.Unmarshal(cm.Replies, &nested); err == nil {
					walk(nested.Data.Children)
				}
			}
		}
	}
	walk(listings[1].Data.Children)
	return out, nil
}

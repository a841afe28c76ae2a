package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindCrawler = "crawler"

	DefaultCrawlTimeout = 60 * time.Second
	keyContentHash      = "content_hash"
)

func init() { register[CrawlerConfig](KindCrawler) }

type CrawlerConfig struct {
	Type           string   `json:"type"`
	URLs           []string `json:"urls"`
	WaitSelector   string   `json:"wait_selector,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

func (c *CrawlerConfig) Kind() string { return KindCrawler }

func (c *CrawlerConfig) Validate() error {
	if len(c.URLs) == 0 {
		return pipeline.MissingField(KindCrawler, "urls")
	}
	for _, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return pipeline.InvalidField(KindCrawler, "urls", fmt.Sprintf("%q is not an absolute http(s) URL", raw))
		}
	}
	if c.TimeoutSeconds < 0 {
		return pipeline.InvalidField(KindCrawler, "timeout_seconds", "must not be negative")
	}
	return nil
}

func (c *CrawlerConfig) timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return DefaultCrawlTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Page is one rendered document returned by a crawl job.
type Page struct {
	URL       string
	Title     string
	Text      string
	FetchedAt time.Time
}

type CrawlJob struct {
	URLs         []string
	WaitSelector string
}

// JobRunner executes crawl jobs outside the calling goroutine. Submit returns
// immediately with a job id, Await blocks until the job finishes or ctx ends.
type JobRunner interface {
	Submit(ctx context.Context, job CrawlJob) (string, error)
	Await(ctx context.Context, jobID string) ([]Page, error)
}

// Crawler renders pages through a JobRunner. Crawled pages carry no upstream
// timestamps, so each URL is its own sub-stream keyed on a content hash and a
// page is only emitted when its content changed.
type Crawler struct {
	runner JobRunner
	now    func() time.Time
}

func NewCrawler(runner JobRunner) *Crawler {
	return &Crawler{runner: runner, now: time.Now}
}

func (c *Crawler) Kind() string { return KindCrawler }

func (c *Crawler) Fetch(ctx context.Context, cfg Config, prev pipeline.Checkpoint) (*Batch, error) {
	cc, ok := cfg.(*CrawlerConfig)
	if !ok {
		return nil, pipeline.InvalidField(KindCrawler, "type", fmt.Sprintf("unexpected config %T", cfg))
	}

	jobID, err := c.runner.Submit(ctx, CrawlJob{URLs: cc.URLs, WaitSelector: cc.WaitSelector})
	if err != nil {
		return nil, pipeline.Unavailable(KindCrawler, err)
	}

	timeout := cc.timeout()
	awaitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pages, err := c.runner.Await(awaitCtx, jobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &pipeline.TimeoutError{Operation: "crawl job " + jobID, After: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pipeline.Unavailable(KindCrawler, err)
	}

	next := prev.Clone()
	records := []pipeline.Record{}
	seen := make(map[string]struct{}, len(pages))

	for _, p := range pages {
		if _, dup := seen[p.URL]; dup {
			continue
		}
		seen[p.URL] = struct{}{}

		text := strings.TrimSpace(p.Text)
		hash := fmt.Sprintf("%016x", xxh3.HashString(text))
		fetched := p.FetchedAt
		if fetched.IsZero() {
			fetched = c.now()
		}

		cur := prev.Cursor(p.URL)
		if fetched.After(cur.SinceTime) {
			cur.SinceTime = fetched
		}
		next.SetCursor(p.URL, cur)

		if old, _ := prev.Value(p.URL, keyContentHash).(string); old == hash {
			continue
		}
		next.Set(p.URL, keyContentHash, hash)

		records = append(records, pipeline.Record{
			ProcessedText: text,
			SourceName:    KindCrawler,
			Meta: map[string]any{
				"id":           p.URL + "#" + hash,
				"url":          p.URL,
				"title":        p.Title,
				"content_hash": hash,
				"crawled_at":   fetched.UTC().Format(time.RFC3339),
			},
		})
	}

	return &Batch{Records: records, Checkpoint: next}, nil
}

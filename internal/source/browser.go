package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

const maxJobLifetime = 10 * time.Minute

// BrowserRunner runs crawl jobs in a headless Chrome sandbox. Each job gets its
// own browser process and is cancelled when its awaiting caller gives up.
type BrowserRunner struct {
	allocOpts []chromedp.ExecAllocatorOption

	mu   sync.Mutex
	jobs map[string]*browserJob
}

type browserJob struct {
	done   chan struct{}
	cancel context.CancelFunc
	pages  []Page
	err    error
}

func NewBrowserRunner(extra ...chromedp.ExecAllocatorOption) *BrowserRunner {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	return &BrowserRunner{
		allocOpts: append(opts, extra...),
		jobs:      make(map[string]*browserJob),
	}
}

func (r *BrowserRunner) Submit(_ context.Context, job CrawlJob) (string, error) {
	if len(job.URLs) == 0 {
		return "", fmt.Errorf("crawl job has no urls")
	}

	id := uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.Background(), maxJobLifetime)
	j := &browserJob{done: make(chan struct{}), cancel: cancel}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()
		j.pages, j.err = r.crawl(jobCtx, job)
	}()

	return id, nil
}

func (r *BrowserRunner) Await(ctx context.Context, jobID string) ([]Page, error) {
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown crawl job %s", jobID)
	}

	defer func() {
		r.mu.Lock()
		delete(r.jobs, jobID)
		r.mu.Unlock()
	}()

	select {
	case <-j.done:
		return j.pages, j.err
	case <-ctx.Done():
		j.cancel()
		return nil, ctx.Err()
	}
}

func (r *BrowserRunner) crawl(ctx context.Context, job CrawlJob) ([]Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, r.allocOpts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	selector := job.WaitSelector
	if selector == "" {
		selector = "body"
	}

	pages := make([]Page, 0, len(job.URLs))
	for _, u := range job.URLs {
		var title, text string
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(u),
			chromedp.WaitReady(selector, chromedp.ByQuery),
			chromedp.Title(&title),
			chromedp.Text(selector, &text, chromedp.ByQuery),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("failed to render page", "url", u, "error", err)
			continue
		}
		pages = append(pages, Page{URL: u, Title: title, Text: text, FetchedAt: time.Now().UTC()})
	}
	return pages, nil
}

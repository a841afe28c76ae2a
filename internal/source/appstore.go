package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hark/apps/backend/internal/pipeline"
)

const (
	KindAppStore = "appstore"

	appStoreURL      = "https://itunes.apple.com"
	appStoreMaxPages = 10
)

func init() { register[AppStoreConfig](KindAppStore) }

type AppStoreConfig struct {
	Type         string   `json:"type"`
	AppID        string   `json:"app_id"`
	Countries    []string `json:"countries,omitempty"`
	LookupPeriod string   `json:"lookup_period,omitempty"`
	MaxCount     int      `json:"max_count,omitempty"`
}

func (c *AppStoreConfig) Kind() string { return KindAppStore }

func (c *AppStoreConfig) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return pipeline.MissingField(KindAppStore, "app_id")
	}
	if c.MaxCount < 0 {
		return pipeline.InvalidField(KindAppStore, "max_count", "must not be negative")
	}
	return pipeline.ValidateLookback(KindAppStore, c.LookupPeriod)
}

func (c *AppStoreConfig) countries() []string {
	if len(c.Countries) == 0 {
		return []string{"us"}
	}
	return c.Countries
}

// AppStore reads the public customer-review feed. Each country is tracked as
// its own sub-stream of the checkpoint.
type AppStore struct {
	base
}

func NewAppStore(opts ...Option) *AppStore {
	return &AppStore{base: newBase(appStoreURL, opts)}
}

func (a *AppStore) Kind() string { return KindAppStore }

type label struct {
	Label string `json:"label"`
}

type appStoreEntry struct {
	ID      label `json:"id"`
	Title   label `json:"title"`
	Content label `json:"content"`
	Updated label `json:"updated"`
	Rating  label `json:"im:rating"`
	Version label `json:"im:version"`
	Author  struct {
		Name label `json:"name"`
	} `json:"author"`
}

type appStoreFeed struct {
	Feed struct {
		Entry json.RawMessage `json:"entry"`
	} `json:"feed"`
}

// entries handles the feed returning a bare object instead of an array when a
// page holds a single review.
func (f *appStoreFeed) entries() ([]appStoreEntry, error) {
	raw := bytes.TrimSpace(f.Feed.Entry)
	if pipeline.IsEmpty(raw) {
		return nil, nil
	}
	if raw[0] == '{' {
		var single appStoreEntry
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		return []appStoreEntry{single}, nil
	}
	var many []appStoreEntry
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func (a *AppStore) Fetch(ctx context.Context, cfg Config, prev pipeline.Checkpoint) (*Batch, error) {
	c, ok := cfg.(*AppStoreConfig)
	if !ok {
		return nil, pipeline.InvalidField(KindAppStore, "type", fmt.Sprintf("unexpected config %T", cfg))
	}

	now := a.now()
	next := prev.Clone()
	records := []pipeline.Record{}

	for _, country := range c.countries() {
		tr, err := pipeline.NewTracker(prev.Cursor(country), c.LookupPeriod, now)
		if err != nil {
			return nil, err
		}

	pages:
		for page := 1; page <= appStoreMaxPages; page++ {
			url := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json", a.baseURL, country, page, c.AppID)
			var feed appStoreFeed
			if err := a.getJSON(ctx, KindAppStore, url, nil, &feed); err != nil {
				return nil, err
			}
			entries, err := feed.entries()
			if err != nil {
				return nil, pipeline.Unavailable(KindAppStore, fmt.Errorf("malformed feed: %w", err))
			}
			if len(entries) == 0 {
				break
			}

			for _, e := range entries {
				updated, err := time.Parse(time.RFC3339, e.Updated.Label)
				if err != nil {
					slog.WarnContext(ctx, "skipping review with unparseable date", "id", e.ID.Label, "updated", e.Updated.Label)
					continue
				}

				switch tr.Observe(e.ID.Label, updated) {
				case pipeline.Stop:
					break pages
				case pipeline.Skip:
					continue
				}

				records = append(records, pipeline.Record{
					ProcessedText: strings.TrimSpace(e.Title.Label + ". " + e.Content.Label),
					SourceName:    KindAppStore,
					Meta: map[string]any{
						"id":         e.ID.Label,
						"app_id":     c.AppID,
						"country":    country,
						"title":      e.Title.Label,
						"content":    e.Content.Label,
						"rating":     e.Rating.Label,
						"version":    e.Version.Label,
						"author":     e.Author.Name.Label,
						"created_at": updated.UTC().Format(time.RFC3339),
					},
				})
				if c.MaxCount > 0 && tr.Emitted() >= c.MaxCount {
					break pages
				}
			}
		}

		next.SetCursor(country, tr.Cursor())
	}

	return &Batch{Records: records, Checkpoint: next}, nil
}

package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/wufuliang561/TrendRadar/internal/config"
	"github.com/wufuliang561/TrendRadar/internal/model"
)

// rssFeed treats a feed as a ranked list: entry order is the rank.
type rssFeed struct {
	id     string
	name   string
	url    string
	limit  int
	parser *gofeed.Parser
}

func newRSSFeed(cfg config.RSSFeedConfig, timeout time.Duration) *rssFeed {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	id := cfg.ID
	if id == "" {
		id = cfg.URL
	}
	return &rssFeed{id: id, name: name, url: cfg.URL, limit: cfg.Limit, parser: p}
}

func (f *rssFeed) ID() string   { return f.id }
func (f *rssFeed) Name() string { return f.name }

func (f *rssFeed) Fetch(ctx context.Context) ([]model.Observation, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss: %s: %w", f.id, err)
	}

	items := feed.Items
	if f.limit > 0 && len(items) > f.limit {
		items = items[:f.limit]
	}

	obs := make([]model.Observation, 0, len(items))
	for i, it := range items {
		title := cleanTitle(it.Title)
		if title == "" {
			continue
		}
		obs = append(obs, model.Observation{
			Title:        title,
			PlatformID:   f.id,
			PlatformName: f.name,
			Rank:         i + 1,
			URL:          it.Link,
		})
	}
	return obs, nil
}

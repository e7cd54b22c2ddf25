package rss

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/news"
)

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feeds config: %w", err)
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode feeds config: %w", err)
	}

	var feeds []string
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			feeds = append(feeds, u)
		}
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured in %s", path)
	}
	return feeds, nil
}

// Collector turns feed items published on a given day into candidates.
type Collector struct {
	urls    []string
	parser  *gofeed.Parser
	loc     *time.Location
	timeout time.Duration
	log     *slog.Logger
}

func NewCollector(urls []string, loc *time.Location, timeout time.Duration, userAgent string, log *slog.Logger) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Logger
	}
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &Collector{
		urls:    urls,
		parser:  parser,
		loc:     loc,
		timeout: timeout,
		log:     log.With("component", "rss"),
	}
}

// Collect downloads every feed and keeps items published on day. Items
// without a date are kept. A failing feed is logged and skipped.
func (c *Collector) Collect(ctx context.Context, day time.Time) ([]news.Candidate, error) {
	var out []news.Candidate
	successCount := 0

	for _, url := range c.urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		feed, err := c.fetch(ctx, url)
		if err != nil {
			c.log.Warn("error parsing RSS", "url", url, "error", err)
			continue // Log error, but don't stop
		}
		successCount++

		kept := 0
		for _, item := range feed.Items {
			cand, ok := c.candidate(item, day)
			if !ok {
				continue
			}
			out = append(out, cand)
			kept++
		}
		c.log.Info("loaded feed", "url", url, "items", len(feed.Items), "kept", kept)
	}

	c.log.Info("processed RSS feeds", "ok", successCount, "total", len(c.urls))
	return out, nil
}

func (c *Collector) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.parser.ParseURLWithContext(url, ctx)
}

func (c *Collector) candidate(item *gofeed.Item, day time.Time) (news.Candidate, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return news.Candidate{}, false
	}

	cand := news.Candidate{Title: title, Link: link}
	if len(item.Categories) > 0 {
		cand.Category = item.Categories[0]
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return cand, true
	}

	local := published.In(c.loc)
	if !sameDay(local, day.In(c.loc)) {
		return news.Candidate{}, false
	}
	cand.Published = local
	return cand, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

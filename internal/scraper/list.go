package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/retry"
)

const listTimeLayout = "2006-01-02 15:04:05"

// ListCollector reads the site's per-day article list.
type ListCollector struct {
	session  *Session
	template string // fmt template taking the YYYY-MM-DD date
	loc      *time.Location
	retry    retry.RetryConfig
	log      *slog.Logger
}

func NewListCollector(session *Session, template string, loc *time.Location, log *slog.Logger) *ListCollector {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Logger
	}
	return &ListCollector{
		session:  session,
		template: template,
		loc:      loc,
		retry:    retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:      log.With("component", "list"),
	}
}

// WithRetry overrides the page load retry policy.
func (lc *ListCollector) WithRetry(cfg retry.RetryConfig) *ListCollector {
	lc.retry = cfg
	return lc
}

// URL returns the list page address for day.
func (lc *ListCollector) URL(day time.Time) string {
	return fmt.Sprintf(lc.template, day.Format("2006-01-02"))
}

// Collect returns every article listed for day. Rows that do not parse are
// logged and skipped.
func (lc *ListCollector) Collect(ctx context.Context, day time.Time) ([]news.Candidate, error) {
	pageURL := lc.URL(day)
	lc.log.Info("opening list page", "url", pageURL)

	var doc *goquery.Document
	cfg := lc.retry
	cfg.OnError = func(attempt int, err error) {
		lc.log.Warn("list page failed", "attempt", attempt, "error", err)
	}
	err := retry.WithRetry(ctx, cfg, func(int) error {
		d, err := lc.session.Document(ctx, pageURL)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load list page %s: %w", pageURL, err)
	}

	return lc.parse(doc, pageURL), nil
}

func (lc *ListCollector) parse(doc *goquery.Document, pageURL string) []news.Candidate {
	base, _ := url.Parse(pageURL)

	rows := doc.Find("ul.datel li")
	lc.log.Info("articles found", "count", rows.Length())

	var out []news.Candidate
	rows.Each(func(i int, row *goquery.Selection) {
		c, err := lc.parseRow(row, base)
		if err != nil {
			lc.log.Warn("skipping article", "row", i, "error", err)
			return
		}
		out = append(out, c)
	})
	return out
}

func (lc *ListCollector) parseRow(row *goquery.Selection, base *url.URL) (news.Candidate, error) {
	category := row.Find("a.c").First()
	if category.Length() == 0 {
		return news.Candidate{}, fmt.Errorf("missing category")
	}

	link := row.Find("a.t").First()
	title := strings.TrimSpace(link.Text())
	href, ok := link.Attr("href")
	if link.Length() == 0 || !ok || title == "" {
		return news.Candidate{}, fmt.Errorf("missing title link")
	}

	stamp := row.Find("i").First()
	if stamp.Length() == 0 {
		return news.Candidate{}, fmt.Errorf("missing time")
	}
	published, err := time.ParseInLocation(listTimeLayout, strings.TrimSpace(stamp.Text()), lc.loc)
	if err != nil {
		return news.Candidate{}, fmt.Errorf("bad time: %w", err)
	}

	return news.Candidate{
		Title:     title,
		Link:      resolve(base, strings.TrimSpace(href)),
		Category:  strings.TrimSpace(category.Text()),
		Published: published,
	}, nil
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

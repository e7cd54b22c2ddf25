// Package fetcher reads crowd votes and publication times from article pages
// and turns them into adjusted scores.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/ratelimit"
	"github.com/deusflow/newsrank/internal/retry"
	"github.com/deusflow/newsrank/internal/score"
)

type Status string

const (
	StatusScored    Status = metrics.StatusScored
	StatusSkipped   Status = metrics.StatusSkipped
	StatusExhausted Status = metrics.StatusExhausted
)

// ErrBudgetExhausted is recorded when a worker has used up its page load budget.
var ErrBudgetExhausted = errors.New("page load budget exhausted")

// Values maps a link to its adjusted score.
type Values map[string]float64

// FetchResult is the outcome for one candidate.
type FetchResult struct {
	Link         string
	Votes        score.Votes
	Raw          float64
	Value        float64
	Published    time.Time
	DecayApplied bool
	Attempts     int
	Status       Status
	Err          error
}

type Config struct {
	MaxRetries       int
	PageTimeout      time.Duration
	RequestDelay     time.Duration
	Workers          int
	MaxPageLoads     int // per worker, 0 = unlimited
	ExcludedPatterns []string

	ValuablePattern   string
	UnvaluablePattern string
	UpVoteID          string
	DownVoteID        string

	Location *time.Location
	Now      func() time.Time
}

// DefaultConfig mirrors the production site layout.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		PageTimeout:       10 * time.Second,
		RequestDelay:      3 * time.Second,
		Workers:           1,
		ExcludedPatterns:  []string{"t.me", "mp.weixin.qq.com"},
		ValuablePattern:   "值得",
		UnvaluablePattern: "不值得",
		UpVoteID:          "news_value_up",
		DownVoteID:        "news_value_down",
	}
}

type Fetcher struct {
	cfg     Config
	factory AccessorFactory
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, factory AccessorFactory, log *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ExcludedPatterns == nil {
		cfg.ExcludedPatterns = def.ExcludedPatterns
	}
	if cfg.ValuablePattern == "" {
		cfg.ValuablePattern = def.ValuablePattern
	}
	if cfg.UnvaluablePattern == "" {
		cfg.UnvaluablePattern = def.UnvaluablePattern
	}
	if cfg.UpVoteID == "" {
		cfg.UpVoteID = def.UpVoteID
	}
	if cfg.DownVoteID == "" {
		cfg.DownVoteID = def.DownVoteID
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Logger
	}
	return &Fetcher{
		cfg:     cfg,
		factory: factory,
		log:     log.With("component", "fetcher"),
		metrics: metrics.Global,
	}
}

// WithMetrics swaps the metrics sink, mostly for tests.
func (f *Fetcher) WithMetrics(m *metrics.Metrics) *Fetcher {
	f.metrics = m
	return f
}

// Fetch scores one candidate using acc.
func (f *Fetcher) Fetch(ctx context.Context, acc Accessor, c news.Candidate) FetchResult {
	return f.fetch(ctx, acc, f.newPacer(), c)
}

// FetchAll scores every distinct link with a bounded pool of workers. Each
// worker owns one accessor and one pacer. Results come back in input order.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []news.Candidate) (Values, []FetchResult, error) {
	unique := news.UniqueByLink(candidates)
	values := make(Values, len(unique))
	results := make([]FetchResult, len(unique))
	for i, c := range unique {
		results[i] = FetchResult{Link: c.Link}
	}
	if len(unique) == 0 {
		return values, results, nil
	}
	if f.factory == nil {
		return nil, nil, fmt.Errorf("fetcher: no accessor factory configured")
	}

	f.metrics.IncrementCandidatesProcessed(len(unique))

	workers := f.cfg.Workers
	if workers > len(unique) {
		workers = len(unique)
	}

	var mu sync.Mutex
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range unique {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			acc, err := f.factory(gctx)
			if err != nil {
				return fmt.Errorf("acquire accessor: %w", err)
			}
			defer func() {
				if cerr := acc.Close(); cerr != nil {
					f.log.Warn("close accessor", "error", cerr)
				}
			}()

			pacer := f.newPacer()
			for i := range jobs {
				c := unique[i]
				f.log.Info("processing", "n", i+1, "total", len(unique), "title", truncate(c.Title, 60))
				r := f.fetch(gctx, acc, pacer, c)

				mu.Lock()
				values[r.Link] = r.Value
				results[i] = r
				mu.Unlock()
			}
			f.log.Debug("worker finished", "worker", w, "pacer", pacer.GetStats())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return values, results, err
	}
	if err := ctx.Err(); err != nil {
		return values, results, err
	}
	return values, results, nil
}

func (f *Fetcher) newPacer() *ratelimit.Pacer {
	return ratelimit.NewPacer(f.cfg.RequestDelay).WithBudget(f.cfg.MaxPageLoads)
}

func (f *Fetcher) fetch(ctx context.Context, acc Accessor, pacer *ratelimit.Pacer, c news.Candidate) FetchResult {
	res := FetchResult{Link: c.Link}
	defer func() { f.metrics.RecordFetch(string(res.Status)) }()

	if f.excluded(c.Link) {
		res.Status = StatusSkipped
		f.log.Debug("excluded link", "link", c.Link)
		return res
	}

	cfg := retry.RetryConfig{
		MaxAttempts: f.cfg.MaxRetries,
		OnError: func(attempt int, err error) {
			timeout := IsTimeout(err)
			f.metrics.IncrementFetchFailure(timeout)
			if timeout {
				f.log.Warn("timeout", "link", c.Link, "attempt", attempt, "max", f.cfg.MaxRetries)
				return
			}
			f.log.Warn("fetch failed", "link", c.Link, "attempt", attempt, "max", f.cfg.MaxRetries, "error", err)
		},
	}

	err := retry.WithRetry(ctx, cfg, func(attempt int) error {
		res.Attempts = attempt
		if !pacer.CanLoad() {
			return retry.Permanent(ErrBudgetExhausted)
		}
		pacer.Use()

		votes, published, ok, err := f.attempt(ctx, acc, c.Link)
		if err != nil {
			return err
		}

		res.Votes = votes
		res.Raw = score.FromVotes(votes)
		res.Published = published
		res.DecayApplied = ok
		res.Value = score.Adjust(res.Raw, published, ok, f.cfg.Now())
		return nil
	})
	if err != nil {
		res.Status = StatusExhausted
		res.Err = err
		res.Votes = score.Votes{}
		res.Raw, res.Value = 0, 0
		return res
	}

	res.Status = StatusScored
	f.log.Info("scored",
		"link", c.Link,
		"raw", fmt.Sprintf("%.2f", res.Raw),
		"adjusted", fmt.Sprintf("%.2f", res.Value),
		"valuable", res.Votes.Valuable,
		"unvaluable", res.Votes.Unvaluable,
		"decay", res.DecayApplied)

	if err := pacer.Pause(ctx); err != nil {
		f.log.Debug("courtesy pause interrupted", "error", err)
	}
	return res
}

func (f *Fetcher) attempt(ctx context.Context, acc Accessor, link string) (score.Votes, time.Time, bool, error) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.PageTimeout)
	defer cancel()

	page, err := acc.Load(actx, link)
	if err != nil {
		return score.Votes{}, time.Time{}, false, fmt.Errorf("load page: %w", err)
	}
	if err := page.WaitForReady(actx, f.cfg.PageTimeout); err != nil {
		return score.Votes{}, time.Time{}, false, fmt.Errorf("wait for page: %w", err)
	}

	votes := f.readVotes(page)
	published, ok := f.readTimestamp(page)
	return votes, published, ok, nil
}

// readVotes tries the labelled vote text first and falls back to the
// vote counter ids only when that yields nothing.
func (f *Fetcher) readVotes(page Page) score.Votes {
	var v score.Votes
	if text, ok := page.FindText(f.cfg.ValuablePattern); ok {
		v.Valuable, _ = firstInt(text)
	}
	if text, ok := page.FindText(f.cfg.UnvaluablePattern); ok {
		v.Unvaluable, _ = firstInt(text)
	}
	if v.Valuable != 0 || v.Unvaluable != 0 {
		return v
	}

	text, ok := page.FindByID(f.cfg.UpVoteID)
	if !ok {
		return v
	}
	up, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return v
	}
	v.Valuable = up

	text, ok = page.FindByID(f.cfg.DownVoteID)
	if !ok {
		return v
	}
	if down, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
		v.Unvaluable = down
	}
	return v
}

func (f *Fetcher) readTimestamp(page Page) (time.Time, bool) {
	sources := []struct{ selector, attr string }{
		{"time.ago", "datetime"},
		{".meta-date", ""},
	}
	for _, src := range sources {
		raw, ok := page.FindSelector(src.selector, src.attr)
		if !ok {
			continue
		}
		if t, ok := score.ParseTimestamp(raw, f.cfg.Location); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func (f *Fetcher) excluded(link string) bool {
	for _, p := range f.cfg.ExcludedPatterns {
		if p != "" && strings.Contains(link, p) {
			return true
		}
	}
	return false
}

var digits = regexp.MustCompile(`\d+`)

func firstInt(s string) (int, bool) {
	m := digits.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

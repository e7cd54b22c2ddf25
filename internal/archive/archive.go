// Package archive appends collected entries to the monthly corpus, suppressing
// entries that are near-identical to ones already archived.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/similarity"
)

// Store persists the month corpus and day documents.
type Store interface {
	// LoadCorpus returns the archived entries of the month containing month.
	LoadCorpus(ctx context.Context, month time.Time) ([]string, error)
	// AppendEntries appends entries to the day document and the month corpus,
	// creating either one when missing. It is called even with no entries.
	AppendEntries(ctx context.Context, day time.Time, entries []string) error
}

// Verdict is the result of testing one entry against the corpus.
type Verdict struct {
	Added bool
	// Match is the corpus entry that suppressed this one.
	Match string
	Ratio float64
	// Detected counts diagnostic near-duplicate hits seen during the scan.
	Detected int
}

// Corpus is an append-only, ordered set of rendered entries.
type Corpus struct {
	mu      sync.Mutex
	entries []string
}

func NewCorpus(lines []string) *Corpus {
	entries := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			entries = append(entries, l)
		}
	}
	return &Corpus{entries: entries}
}

// TestAndAdd compares entry against every corpus entry and adds it when none
// is a duplicate. The scan and the insert happen under one lock.
func (c *Corpus) TestAndAdd(entry string, m similarity.Matcher) Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	var v Verdict
	for _, existing := range c.entries {
		cmp := m.Compare(entry, existing)
		if cmp.Detected {
			v.Detected++
		}
		if cmp.Duplicate {
			v.Match = existing
			v.Ratio = cmp.Ratio
			return v
		}
	}
	c.entries = append(c.entries, entry)
	v.Added = true
	return v
}

func (c *Corpus) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Suppressed records an entry dropped as a duplicate.
type Suppressed struct {
	Entry string
	Match string
	Ratio float64
}

// MergeResult summarizes one merge.
type MergeResult struct {
	// Entries are the accepted entries in input order.
	Entries        []string
	Suppressed     []Suppressed
	Seen           int
	NearDuplicates int

	// CorpusSize is the month corpus size once the merge is done.
	CorpusSize int
}

// Written is the number of accepted entries.
func (r MergeResult) Written() int { return len(r.Entries) }

// Merge renders each candidate and keeps those that are not duplicates of the
// corpus, including entries accepted earlier in the same merge.
func Merge(day []news.Candidate, corpusLines []string, m similarity.Matcher) MergeResult {
	corpus := NewCorpus(corpusLines)
	res := MergeResult{Seen: len(day)}

	for _, c := range day {
		entry := news.RenderMarkdown(c)
		v := corpus.TestAndAdd(entry, m)
		res.NearDuplicates += v.Detected
		if v.Added {
			res.Entries = append(res.Entries, entry)
			continue
		}
		res.Suppressed = append(res.Suppressed, Suppressed{Entry: entry, Match: v.Match, Ratio: v.Ratio})
	}
	res.CorpusSize = corpus.Len()
	return res
}

type Archiver struct {
	store   Store
	matcher similarity.Matcher
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewArchiver(store Store, threshold float64, log *slog.Logger) *Archiver {
	if log == nil {
		log = logger.Logger
	}
	return &Archiver{
		store:   store,
		matcher: similarity.NewMatcher(threshold),
		log:     log.With("component", "archive"),
		metrics: metrics.Global,
	}
}

func (a *Archiver) WithMetrics(m *metrics.Metrics) *Archiver {
	a.metrics = m
	return a
}

// Archive merges candidates into the month corpus of day and persists the
// accepted entries.
func (a *Archiver) Archive(ctx context.Context, day time.Time, candidates []news.Candidate) (MergeResult, error) {
	lines, err := a.store.LoadCorpus(ctx, day)
	if err != nil {
		return MergeResult{}, fmt.Errorf("load corpus for %s: %w", day.Format("2006-01"), err)
	}

	res := Merge(candidates, lines, a.matcher)

	for _, s := range res.Suppressed {
		a.metrics.IncrementDuplicatesFiltered()
		a.log.Debug("duplicate suppressed", "entry", truncate(s.Entry, 50), "similarity", s.Ratio)
	}
	for i := 0; i < res.NearDuplicates; i++ {
		a.metrics.IncrementNearDuplicates()
	}
	if res.NearDuplicates > 0 {
		a.log.Info("near-duplicates detected", "count", res.NearDuplicates)
	}

	if err := a.store.AppendEntries(ctx, day, res.Entries); err != nil {
		return res, fmt.Errorf("append entries for %s: %w", day.Format("2006-01-02"), err)
	}
	a.metrics.IncrementArchived(res.Written())

	if res.Written() > 0 {
		a.log.Info("saved entries", "count", res.Written(), "day", day.Format("2006-01-02"), "corpus_size", res.CorpusSize)
	} else {
		a.log.Info("nothing new to save", "day", day.Format("2006-01-02"))
	}
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

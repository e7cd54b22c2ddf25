// Package ranking orders a day's candidates by adjusted score and renders the
// sorted document.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/deusflow/newsrank/internal/fetcher"
	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/score"
)

// SortedMarker is appended to the header of a ranked document.
const SortedMarker = "(sorted)"

// ErrNoCandidates means the document held no recognizable entries.
var ErrNoCandidates = errors.New("no candidates in document")

// ValueSource produces adjusted scores for candidates.
type ValueSource interface {
	FetchAll(ctx context.Context, candidates []news.Candidate) (fetcher.Values, []fetcher.FetchResult, error)
}

// Rank drops candidates at or below the sentinel and sorts the rest by
// descending value. Ties keep input order. Missing values count as 0.
func Rank(candidates []news.Candidate, values fetcher.Values) []news.Candidate {
	ranked := make([]news.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if values[c.Link] > score.Sentinel {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return values[ranked[i].Link] > values[ranked[j].Link]
	})
	return ranked
}

// Render writes the ranked document: a marked header, then one HTML line per entry.
func Render(label string, ranked []news.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s%s\n", label, SortedMarker)
	for _, c := range ranked {
		b.WriteString(news.RenderHTML(c))
		b.WriteByte('\n')
	}
	return b.String()
}

// IsRanked reports whether doc was already produced by Render.
func IsRanked(doc string) bool {
	return strings.Contains(doc, SortedMarker)
}

type Pipeline struct {
	source  ValueSource
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewPipeline(source ValueSource, log *slog.Logger) *Pipeline {
	if log == nil {
		log = logger.Logger
	}
	return &Pipeline{
		source:  source,
		log:     log.With("component", "ranking"),
		metrics: metrics.Global,
	}
}

func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Process ranks doc. An already ranked document is returned untouched with
// changed=false.
func (p *Pipeline) Process(ctx context.Context, label, doc string) (string, bool, error) {
	if IsRanked(doc) {
		p.log.Info("already sorted, skipping", "label", label)
		return doc, false, nil
	}

	candidates := news.Parse(doc)
	if len(candidates) == 0 {
		return "", false, ErrNoCandidates
	}
	p.log.Info("parsed candidates", "label", label, "count", len(candidates))

	values, _, err := p.source.FetchAll(ctx, candidates)
	if err != nil {
		return "", false, fmt.Errorf("fetch values: %w", err)
	}

	ranked := Rank(candidates, values)
	if dropped := len(candidates) - len(ranked); dropped > 0 {
		p.metrics.IncrementSentinelFiltered(dropped)
		p.log.Info("filtered unworthy entries", "count", dropped)
	}

	return Render(label, ranked), true, nil
}

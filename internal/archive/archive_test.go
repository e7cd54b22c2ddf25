package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/similarity"
)

func cjkTitle(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(rune(0x4E00 + i))
	}
	return b.String()
}

func TestMerge(t *testing.T) {
	m := similarity.NewMatcher(0.9)
	longTitle := cjkTitle(140)
	longVariant := strings.Replace(longTitle, string(rune(0x4E00+70)), "X", 1)

	tests := map[string]struct {
		corpus         []string
		day            []news.Candidate
		wantEntries    []string
		wantSuppressed int
		wantNear       int
	}{
		"new entry accepted": {
			corpus:      []string{"# 本月新闻", "- [苹果发布新款 iPad](https://www.ithome.com/0/1.htm)"},
			day:         []news.Candidate{{Title: "微软发布 Windows 12", Link: "https://www.ithome.com/0/2.htm"}},
			wantEntries: []string{"- [微软发布 Windows 12](https://www.ithome.com/0/2.htm)"},
		},
		"exact duplicate suppressed": {
			corpus:         []string{"- [a title](http://a)"},
			day:            []news.Candidate{{Title: "a title", Link: "http://a"}},
			wantSuppressed: 1,
		},
		"one character change suppressed and detected": {
			corpus:         []string{"- [abcdefgh](h://x)"},
			day:            []news.Candidate{{Title: "abcdefgX", Link: "h://x"}},
			wantSuppressed: 1,
			wantNear:       1,
		},
		"near identical long entry suppressed without detection": {
			corpus:         []string{"- [" + longTitle + "](h://x)"},
			day:            []news.Candidate{{Title: longVariant, Link: "h://x"}},
			wantSuppressed: 1,
		},
		"duplicates within the same run": {
			day: []news.Candidate{
				{Title: "abcdefgh", Link: "h://x"},
				{Title: "abcdefgX", Link: "h://x"},
				{Title: "zzzz", Link: "h://y"},
			},
			wantEntries:    []string{"- [abcdefgh](h://x)", "- [zzzz](h://y)"},
			wantSuppressed: 1,
			wantNear:       1,
		},
		"empty day": {
			corpus: []string{"- [a](b)"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			res := Merge(tc.day, tc.corpus, m)
			assert.Equal(t, tc.wantEntries, res.Entries)
			assert.Equal(t, len(tc.wantEntries), res.Written())
			assert.Len(t, res.Suppressed, tc.wantSuppressed)
			assert.Equal(t, tc.wantNear, res.NearDuplicates)
			assert.Equal(t, len(tc.day), res.Seen)
		})
	}
}

func TestMerge_SuppressedDetails(t *testing.T) {
	res := Merge([]news.Candidate{{Title: "abcdefgX", Link: "h://x"}}, []string{"- [abcdefgh](h://x)"}, similarity.NewMatcher(0.9))
	require.Len(t, res.Suppressed, 1)
	assert.Equal(t, "- [abcdefgX](h://x)", res.Suppressed[0].Entry)
	assert.Equal(t, "- [abcdefgh](h://x)", res.Suppressed[0].Match)
	assert.InDelta(t, 0.9474, res.Suppressed[0].Ratio, 1e-9)
}

func TestCorpus_TestAndAddConcurrent(t *testing.T) {
	c := NewCorpus([]string{"", "  ", "- [seed](http://seed)"})
	require.Equal(t, 1, c.Len())

	m := similarity.NewMatcher(0.9)
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TestAndAdd("- [same entry](http://same)", m).Added {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Equal(t, 2, c.Len())
}

type memStore struct {
	corpus    []string
	loadErr   error
	appendErr error
	appended  map[string][]string
}

func (s *memStore) LoadCorpus(context.Context, time.Time) ([]string, error) {
	return s.corpus, s.loadErr
}

func (s *memStore) AppendEntries(_ context.Context, day time.Time, entries []string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.appended == nil {
		s.appended = map[string][]string{}
	}
	key := day.Format("2006-01-02")
	s.appended[key] = append(s.appended[key], entries...)
	s.corpus = append(s.corpus, entries...)
	return nil
}

func TestArchiver_Archive(t *testing.T) {
	store := &memStore{corpus: []string{"# 本月新闻", "- [old](http://old)"}}
	m := metrics.New()
	a := NewArchiver(store, 0.9, logger.Discard()).WithMetrics(m)
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	res, err := a.Archive(context.Background(), day, []news.Candidate{
		{Title: "old", Link: "http://old"},
		{Title: "fresh", Link: "http://fresh"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written())
	assert.Equal(t, 3, res.CorpusSize)
	assert.Equal(t, []string{"- [fresh](http://fresh)"}, store.appended["2025-03-14"])

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats["entries_archived"])
	assert.Equal(t, int64(1), stats["duplicates_filtered"])

	// Re-running the same day writes nothing new.
	res, err = a.Archive(context.Background(), day, []news.Candidate{{Title: "fresh", Link: "http://fresh"}})
	require.NoError(t, err)
	assert.Zero(t, res.Written())
	assert.Equal(t, []string{"- [fresh](http://fresh)"}, store.appended["2025-03-14"])
}

func TestArchiver_StoreErrors(t *testing.T) {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	errDisk := errors.New("disk full")

	_, err := NewArchiver(&memStore{loadErr: errDisk}, 0.9, logger.Discard()).
		WithMetrics(metrics.New()).
		Archive(context.Background(), day, nil)
	assert.ErrorIs(t, err, errDisk)

	_, err = NewArchiver(&memStore{appendErr: errDisk}, 0.9, logger.Discard()).
		WithMetrics(metrics.New()).
		Archive(context.Background(), day, []news.Candidate{{Title: "a", Link: "b"}})
	assert.ErrorIs(t, err, errDisk)
}

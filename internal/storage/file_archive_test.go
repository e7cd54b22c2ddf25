package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func TestFileArchive_Layout(t *testing.T) {
	fa := NewFileArchive("news_archive")
	assert.Equal(t, filepath.Join("news_archive", "2025-03", "14.md"), fa.DayPath(testDay))
	assert.Equal(t, filepath.Join("news_archive", "2025-03", "00.md"), fa.MonthPath(testDay))
}

func TestFileArchive_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	fa := NewFileArchive(t.TempDir())

	corpus, err := fa.LoadCorpus(ctx, testDay)
	require.NoError(t, err)
	assert.Empty(t, corpus)

	require.NoError(t, fa.AppendEntries(ctx, testDay, []string{"- [a](http://a)", "- [b](http://b)"}))
	next := testDay.AddDate(0, 0, 1)
	require.NoError(t, fa.AppendEntries(ctx, next, []string{"- [c](http://c)"}))

	month, err := os.ReadFile(fa.MonthPath(testDay))
	require.NoError(t, err)
	assert.Equal(t, "# 本月新闻\n- [a](http://a)\n- [b](http://b)\n- [c](http://c)\n", string(month))

	day, err := fa.ReadDay(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, "# 今日新闻 - 2025年03月14日\n- [a](http://a)\n- [b](http://b)\n", day)

	corpus, err = fa.LoadCorpus(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, []string{"- [a](http://a)", "- [b](http://b)", "- [c](http://c)"}, corpus)

	other, err := fa.LoadCorpus(ctx, testDay.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestFileArchive_AppendNothingCreatesHeaders(t *testing.T) {
	ctx := context.Background()
	fa := NewFileArchive(t.TempDir())

	require.NoError(t, fa.AppendEntries(ctx, testDay, nil))

	day, err := fa.ReadDay(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, "# 今日新闻 - 2025年03月14日\n", day)

	month, err := os.ReadFile(fa.MonthPath(testDay))
	require.NoError(t, err)
	assert.Equal(t, "# 本月新闻\n", string(month))
}

func TestFileArchive_WriteDay(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fa := NewFileArchive(root)

	_, err := fa.ReadDay(ctx, testDay)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fa.AppendEntries(ctx, testDay, []string{"- [a](http://a)"}))
	ranked := "# 今日新闻 - 2025年03月14日(sorted)\n<p><a href=\"http://a\">a</a></p>\n"
	require.NoError(t, fa.WriteDay(ctx, testDay, ranked))

	got, err := fa.ReadDay(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, ranked, got)

	// No temp files are left behind.
	files, err := os.ReadDir(filepath.Join(root, "2025-03"))
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	assert.ElementsMatch(t, []string{"00.md", "14.md"}, names)
}

func TestFileArchive_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fa := NewFileArchive(t.TempDir())

	_, err := fa.LoadCorpus(ctx, testDay)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, fa.AppendEntries(ctx, testDay, nil), context.Canceled)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "news_archive", cfg.ArchiveRoot)
	assert.Equal(t, "Asia/Shanghai", cfg.Location.String())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.PageTimeout)
	assert.Equal(t, 3*time.Second, cfg.RequestDelay)
	assert.Equal(t, 1, cfg.FetchWorkers)
	assert.Equal(t, []string{"t.me", "mp.weixin.qq.com"}, cfg.ExcludedLinkPatterns)
	assert.InDelta(t, 0.9, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, BackendFile, cfg.CorpusBackend)
	assert.False(t, cfg.TopicFilter)
	assert.Zero(t, cfg.RunTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ARCHIVE_ROOT", "/tmp/arch")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("PAGE_TIMEOUT", "20")
	t.Setenv("REQUEST_DELAY", "500ms")
	t.Setenv("FETCH_WORKERS", "4")
	t.Setenv("EXCLUDED_LINK_PATTERNS", " t.me , example.org,,")
	t.Setenv("SIMILARITY_THRESHOLD", "0.85")
	t.Setenv("TOPIC_FILTER", "true")
	t.Setenv("CORPUS_BACKEND", "SQLite")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("RUN_TIMEOUT", "30m")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/arch", cfg.ArchiveRoot)
	assert.Equal(t, time.UTC.String(), cfg.Location.String())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.PageTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay)
	assert.Equal(t, 4, cfg.FetchWorkers)
	assert.Equal(t, []string{"t.me", "example.org"}, cfg.ExcludedLinkPatterns)
	assert.InDelta(t, 0.85, cfg.SimilarityThreshold, 1e-9)
	assert.True(t, cfg.TopicFilter)
	assert.Equal(t, BackendSQLite, cfg.CorpusBackend)
	assert.Equal(t, 30*time.Minute, cfg.RunTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		env     map[string]string
		wantErr string
	}{
		"bad timezone":         {env: map[string]string{"TIMEZONE": "Mars/Base"}, wantErr: "TIMEZONE"},
		"zero retries":         {env: map[string]string{"MAX_RETRIES": "0"}, wantErr: "MAX_RETRIES"},
		"zero workers":         {env: map[string]string{"FETCH_WORKERS": "0"}, wantErr: "FETCH_WORKERS"},
		"threshold too high":   {env: map[string]string{"SIMILARITY_THRESHOLD": "1.5"}, wantErr: "SIMILARITY_THRESHOLD"},
		"postgres without url": {env: map[string]string{"CORPUS_BACKEND": "postgres"}, wantErr: "DATABASE_URL"},
		"unknown backend":      {env: map[string]string{"CORPUS_BACKEND": "redis"}, wantErr: "CORPUS_BACKEND"},
		"template without verb": {
			env:     map[string]string{"LIST_URL_TEMPLATE": "https://example.com/list.html"},
			wantErr: "LIST_URL_TEMPLATE",
		},
		"unknown log format": {env: map[string]string{"LOG_FORMAT": "xml"}, wantErr: "LOG_FORMAT"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestYesterday(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	cfg := &Config{Location: loc}

	// 2025-03-14 20:00 UTC is already 2025-03-15 in Shanghai.
	now := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)
	day := cfg.Yesterday(now)
	assert.Equal(t, "2025-03-14", day.Format("2006-01-02"))
	assert.Equal(t, cfg.Location, day.Location())
}

func TestParseDay(t *testing.T) {
	cfg := &Config{}
	d, err := cfg.ParseDay("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), d)

	_, err = cfg.ParseDay("31/01/2025")
	assert.Error(t, err)
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsrank/internal/fetcher"
	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/retry"
)

const articleHTML = `<html><body>
<div id="rank">
  <a class="up">12 值得</a>
  <a class="down">3 不值得</a>
</div>
<span id="news_value_up">12</span><span id="news_value_down">3</span>
<time class="ago" datetime="2025-03-14 09:30:00">30 分钟前</time>
<span class="meta-date">2025年03月14日 09:30</span>
</body></html>`

const listHTML = `<html><body>
<ul class="datel">
  <li><a class="c" href="/c/1">手机</a><a class="t" href="https://www.ithome.com/0/1.htm">小米发布新手机</a><i>2025-03-14 08:00:00</i></li>
  <li><a class="c" href="/c/2">AI</a><a class="t" href="/0/2.htm">OpenAI 发布新模型</a><i>2025-03-14 09:15:30</i></li>
  <li><a class="c" href="/c/3">软件</a><a class="t" href="/0/3.htm">缺少时间的条目</a></li>
  <li><a class="c" href="/c/4">硬件</a><a class="t" href="/0/4.htm">时间格式错误</a><i>昨天</i></li>
</ul>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/list/2025-03-14.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listHTML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_Load(t *testing.T) {
	srv := newServer(t)
	s := NewSession(time.Second, "test-agent")
	defer s.Close()

	page, err := s.Load(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	require.NoError(t, page.WaitForReady(context.Background(), time.Second))

	text, ok := page.FindText("值得")
	assert.True(t, ok)
	assert.Equal(t, "12 值得", text)

	text, ok = page.FindText("不值得")
	assert.True(t, ok)
	assert.Equal(t, "3 不值得", text)

	_, ok = page.FindText("没有这个")
	assert.False(t, ok)

	up, ok := page.FindByID("news_value_up")
	assert.True(t, ok)
	assert.Equal(t, "12", up)

	_, ok = page.FindByID("missing")
	assert.False(t, ok)

	dt, ok := page.FindSelector("time.ago", "datetime")
	assert.True(t, ok)
	assert.Equal(t, "2025-03-14 09:30:00", dt)

	meta, ok := page.FindSelector(".meta-date", "")
	assert.True(t, ok)
	assert.Equal(t, "2025年03月14日 09:30", meta)

	_, ok = page.FindSelector("time.ago", "title")
	assert.False(t, ok)
}

func TestSession_Errors(t *testing.T) {
	srv := newServer(t)

	t.Run("not found", func(t *testing.T) {
		_, err := NewSession(time.Second, "").Load(context.Background(), srv.URL+"/missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
		assert.False(t, fetcher.IsTimeout(err))
	})

	t.Run("slow page times out", func(t *testing.T) {
		_, err := NewSession(50*time.Millisecond, "").Load(context.Background(), srv.URL+"/slow")
		require.Error(t, err)
		assert.True(t, fetcher.IsTimeout(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewSession(time.Minute, "").Load(ctx, srv.URL+"/slow")
		require.Error(t, err)
		assert.True(t, fetcher.IsTimeout(err))
	})

	t.Run("empty body is not ready", func(t *testing.T) {
		page, err := NewSession(time.Second, "").Load(context.Background(), srv.URL+"/empty")
		require.NoError(t, err)
		err = page.WaitForReady(context.Background(), time.Second)
		assert.True(t, fetcher.IsTimeout(err))
	})
}

func TestSession_WithFetcher(t *testing.T) {
	srv := newServer(t)

	cfg := fetcher.DefaultConfig()
	cfg.RequestDelay = 0
	cfg.Workers = 2
	cfg.Now = func() time.Time { return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC) }

	f := fetcher.New(cfg, Factory(time.Second, "test-agent"), logger.Discard()).WithMetrics(metrics.New())
	values, results, err := f.FetchAll(context.Background(), []news.Candidate{
		{Title: "article", Link: srv.URL + "/article"},
		{Title: "channel", Link: "https://t.me/somechannel"},
	})
	require.NoError(t, err)

	// 12 up / 3 down = 8, published 30 minutes ago => x1.5
	assert.InDelta(t, 12.0, values[srv.URL+"/article"], 1e-9)
	assert.Zero(t, values["https://t.me/somechannel"])
	assert.Equal(t, fetcher.StatusScored, results[0].Status)
	assert.True(t, results[0].DecayApplied)
	assert.Equal(t, fetcher.StatusSkipped, results[1].Status)
}

func TestListCollector_Collect(t *testing.T) {
	srv := newServer(t)
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	lc := NewListCollector(NewSession(time.Second, ""), srv.URL+"/list/%s.html", time.UTC, logger.Discard()).
		WithRetry(retry.RetryConfig{MaxAttempts: 1})
	assert.Equal(t, srv.URL+"/list/2025-03-14.html", lc.URL(day))

	items, err := lc.Collect(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, news.Candidate{
		Title:     "小米发布新手机",
		Link:      "https://www.ithome.com/0/1.htm",
		Category:  "手机",
		Published: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
	}, items[0])
	assert.Equal(t, "OpenAI 发布新模型", items[1].Title)
	assert.Equal(t, srv.URL+"/0/2.htm", items[1].Link)
	assert.Equal(t, "AI", items[1].Category)
}

func TestListCollector_PageError(t *testing.T) {
	srv := newServer(t)
	lc := NewListCollector(NewSession(time.Second, ""), srv.URL+"/nolist/%s.html", nil, logger.Discard()).
		WithRetry(retry.RetryConfig{MaxAttempts: 2})

	_, err := lc.Collect(context.Background(), time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

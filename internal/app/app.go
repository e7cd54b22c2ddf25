package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsrank/internal/archive"
	"github.com/deusflow/newsrank/internal/config"
	"github.com/deusflow/newsrank/internal/fetcher"
	"github.com/deusflow/newsrank/internal/logger"
	"github.com/deusflow/newsrank/internal/metrics"
	"github.com/deusflow/newsrank/internal/news"
	"github.com/deusflow/newsrank/internal/ranking"
	"github.com/deusflow/newsrank/internal/rss"
	"github.com/deusflow/newsrank/internal/scraper"
	"github.com/deusflow/newsrank/internal/storage"
)

// Collection sources.
const (
	SourceList = "list"
	SourceRSS  = "rss"
)

// Collector supplies the candidates published on a day.
type Collector interface {
	Collect(ctx context.Context, day time.Time) ([]news.Candidate, error)
}

// DayStore reads and replaces day documents.
type DayStore interface {
	ReadDay(ctx context.Context, day time.Time) (string, error)
	WriteDay(ctx context.Context, day time.Time, doc string) error
}

// Store is everything a run needs from persistence.
type Store interface {
	archive.Store
	DayStore
	Close() error
}

type App struct {
	cfg     *config.Config
	store   Store
	factory fetcher.AccessorFactory
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg *config.Config, store Store, log *slog.Logger) *App {
	if log == nil {
		log = logger.Logger
	}
	return &App{
		cfg:     cfg,
		store:   store,
		factory: scraper.Factory(cfg.PageTimeout, cfg.UserAgent),
		log:     log,
		metrics: metrics.Global,
	}
}

// WithAccessorFactory replaces the page accessor used when ranking.
func (a *App) WithAccessorFactory(f fetcher.AccessorFactory) *App {
	a.factory = f
	return a
}

func (a *App) WithMetrics(m *metrics.Metrics) *App {
	a.metrics = m
	return a
}

// OpenStore opens the configured archive backend.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.CorpusBackend {
	case config.BackendPostgres, config.BackendSQLite:
		s, err := storage.OpenSQL(ctx, cfg.CorpusBackend, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFile, "":
		return storage.NewFileArchive(cfg.ArchiveRoot), nil
	default:
		return nil, fmt.Errorf("unknown corpus backend %q", cfg.CorpusBackend)
	}
}

// NewCollector builds the collector for source.
func (a *App) NewCollector(source string) (Collector, error) {
	switch source {
	case SourceList, "":
		session := scraper.NewSession(a.cfg.PageTimeout, a.cfg.UserAgent)
		return scraper.NewListCollector(session, a.cfg.ListURLTemplate, a.cfg.Location, a.log), nil
	case SourceRSS:
		feeds, err := rss.LoadFeeds(a.cfg.FeedsConfigPath)
		if err != nil {
			return nil, err
		}
		return rss.NewCollector(feeds, a.cfg.Location, a.cfg.PageTimeout, a.cfg.UserAgent, a.log), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want %q or %q)", source, SourceList, SourceRSS)
	}
}

// CollectDay gathers the day's candidates and archives the new ones.
func (a *App) CollectDay(ctx context.Context, day time.Time, c Collector) (res archive.MergeResult, err error) {
	start := time.Now()
	defer func() { a.finish("collect", start, err) }()

	a.log.Info("collecting news", "day", day.Format("2006-01-02"))
	items, err := c.Collect(ctx, day)
	if err != nil {
		return archive.MergeResult{}, fmt.Errorf("collect: %w", err)
	}
	a.log.Info("news collected", "count", len(items))

	if a.cfg.TopicFilter {
		before := len(items)
		items = news.FilterTopics(items)
		a.log.Info("topic filter applied", "kept", len(items), "dropped", before-len(items))
	}

	archiver := archive.NewArchiver(a.store, a.cfg.SimilarityThreshold, a.log).WithMetrics(a.metrics)
	return archiver.Archive(ctx, day, items)
}

// RankDay ranks the day document in place. It reports whether the document
// was rewritten.
func (a *App) RankDay(ctx context.Context, day time.Time) (changed bool, err error) {
	start := time.Now()
	defer func() { a.finish("rank", start, err) }()

	doc, err := a.store.ReadDay(ctx, day)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Info("day document does not exist, skipping", "day", day.Format("2006-01-02"))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read day: %w", err)
	}

	f := fetcher.New(a.fetcherConfig(), a.factory, a.log).WithMetrics(a.metrics)
	pipeline := ranking.NewPipeline(f, a.log).WithMetrics(a.metrics)

	out, changed, err := pipeline.Process(ctx, news.DayLabel(day), doc)
	if errors.Is(err, ranking.ErrNoCandidates) {
		a.log.Warn("no entries found in day document", "day", day.Format("2006-01-02"))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if err := a.store.WriteDay(ctx, day, out); err != nil {
		return false, fmt.Errorf("write day: %w", err)
	}
	a.log.Info("day document sorted", "day", day.Format("2006-01-02"))
	return true, nil
}

func (a *App) fetcherConfig() fetcher.Config {
	cfg := fetcher.DefaultConfig()
	cfg.MaxRetries = a.cfg.MaxRetries
	cfg.PageTimeout = a.cfg.PageTimeout
	cfg.RequestDelay = a.cfg.RequestDelay
	cfg.Workers = a.cfg.FetchWorkers
	cfg.MaxPageLoads = a.cfg.MaxPageLoads
	cfg.ExcludedPatterns = a.cfg.ExcludedLinkPatterns
	cfg.Location = a.cfg.Location
	return cfg
}

func (a *App) finish(command string, start time.Time, err error) {
	elapsed := time.Since(start)
	a.metrics.RecordProcessingTime(command, elapsed)
	if err != nil {
		a.metrics.SetError(err.Error())
		return
	}
	a.metrics.SetLastRun()
	a.log.Info("run completed", "command", command, "elapsed", elapsed.Round(time.Millisecond))
}

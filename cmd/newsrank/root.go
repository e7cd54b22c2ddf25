package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsrank/internal/app"
	"github.com/deusflow/newsrank/internal/config"
	"github.com/deusflow/newsrank/internal/logger"
)

type cli struct {
	cfg    *config.Config
	date   string
	source string
	now    func() time.Time
}

func newRootCmd() *cobra.Command {
	c := &cli{now: time.Now}

	root := &cobra.Command{
		Use:   "newsrank",
		Short: "Archive, deduplicate and rank daily news",
		Long: `newsrank keeps a monthly markdown archive of the day's news and ranks
each day by crowd votes.

Example usage:
  newsrank collect                 # archive yesterday's list page
  newsrank collect --source rss    # archive yesterday's feed items
  newsrank rank --date 2025-03-14  # sort a day document by worthiness
  newsrank serve                   # expose /health, /stats and /metrics`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.init,
	}

	root.PersistentFlags().StringVar(&c.date, "date", "", "day to process as YYYY-MM-DD (default: yesterday in TIMEZONE)")

	root.AddCommand(c.collectCmd(), c.rankCmd(), c.serveCmd())
	return root
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat, Output: cmd.OutOrStdout()})
	c.cfg = cfg
	logger.Debug("configuration loaded",
		"backend", cfg.CorpusBackend,
		"archive_root", cfg.ArchiveRoot,
		"timezone", cfg.Timezone,
		"workers", cfg.FetchWorkers)

	// serve runs the monitoring server in the foreground itself.
	if cfg.EnableHTTPMonitoring && cmd.Name() != "serve" {
		go startMonitoringServer(cmd.Context(), cfg.MonitoringPort)
	}
	return nil
}

func (c *cli) day() (time.Time, error) {
	if c.date == "" {
		return c.cfg.Yesterday(c.now()), nil
	}
	return c.cfg.ParseDay(c.date)
}

func (c *cli) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RunTimeout > 0 {
		return context.WithTimeout(parent, c.cfg.RunTimeout)
	}
	return context.WithCancel(parent)
}

func (c *cli) collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect the day's news and append new entries to the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := c.day()
			if err != nil {
				return err
			}
			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()

			store, err := app.OpenStore(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			a := app.New(c.cfg, store, logger.Logger)
			collector, err := a.NewCollector(c.source)
			if err != nil {
				return err
			}

			res, err := a.CollectDay(ctx, day, collector)
			if err != nil {
				return err
			}
			if res.Seen == 0 {
				logger.Warn("no news found for day", "day", day.Format("2006-01-02"), "source", c.source)
			}
			logStoreStats(ctx, store)
			logger.Info("collect finished",
				"day", day.Format("2006-01-02"),
				"seen", res.Seen,
				"written", res.Written(),
				"duplicates", len(res.Suppressed))
			return nil
		},
	}
	cmd.Flags().StringVar(&c.source, "source", app.SourceList, "where to collect from: list or rss")
	return cmd
}

func (c *cli) rankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Sort a day document by adjusted worthiness score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := c.day()
			if err != nil {
				return err
			}
			ctx, cancel := c.runContext(cmd.Context())
			defer cancel()

			store, err := app.OpenStore(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			changed, err := app.New(c.cfg, store, logger.Logger).RankDay(ctx, day)
			if err != nil {
				return err
			}
			logStoreStats(ctx, store)
			logger.Info("rank finished", "day", day.Format("2006-01-02"), "changed", changed)
			return nil
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the monitoring endpoints until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitoringServer(cmd.Context(), c.cfg.MonitoringPort)
		},
	}
}

// statsReporter is implemented by stores that can count what they hold.
type statsReporter interface {
	GetStats(ctx context.Context) (map[string]int, error)
}

func logStoreStats(ctx context.Context, store app.Store) {
	r, ok := store.(statsReporter)
	if !ok {
		return
	}
	stats, err := r.GetStats(ctx)
	if err != nil {
		logger.Warn("archive stats unavailable", "error", err)
		return
	}
	logger.Info("archive stats", "total_entries", stats["total_entries"], "ranked_days", stats["ranked_days"])
}

// Package config loads run settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo
)

// Corpus backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	// Archive settings
	ArchiveRoot   string
	Timezone      string
	Location      *time.Location
	CorpusBackend string // file | postgres | sqlite
	DatabaseURL   string

	// Fetcher settings
	MaxRetries           int
	PageTimeout          time.Duration
	RequestDelay         time.Duration
	FetchWorkers         int
	MaxPageLoads         int // per worker, 0 = unlimited
	ExcludedLinkPatterns []string
	UserAgent            string

	// Dedup settings
	SimilarityThreshold float64

	// Collector settings
	ListURLTemplate string
	FeedsConfigPath string
	TopicFilter     bool

	// App settings
	Debug                bool
	LogFormat            string
	RunTimeout           time.Duration // 0 = none
	EnableHTTPMonitoring bool
	MonitoringPort       string
}

const (
	DefaultListURLTemplate = "https://www.ithome.com/list/%s.html"
	DefaultUserAgent       = "Mozilla/5.0 (compatible; newsrank/1.0)"
)

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		ArchiveRoot:          "news_archive",
		Timezone:             "Asia/Shanghai",
		CorpusBackend:        BackendFile,
		MaxRetries:           3,
		PageTimeout:          10 * time.Second,
		RequestDelay:         3 * time.Second,
		FetchWorkers:         1,
		ExcludedLinkPatterns: []string{"t.me", "mp.weixin.qq.com"},
		UserAgent:            DefaultUserAgent,
		SimilarityThreshold:  0.9,
		ListURLTemplate:      DefaultListURLTemplate,
		FeedsConfigPath:      "configs/feeds.yaml",
		LogFormat:            "text",
		MonitoringPort:       "8080",
	}

	cfg.ArchiveRoot = getEnvOrDefault("ARCHIVE_ROOT", cfg.ArchiveRoot)
	cfg.Timezone = getEnvOrDefault("TIMEZONE", cfg.Timezone)
	cfg.CorpusBackend = strings.ToLower(getEnvOrDefault("CORPUS_BACKEND", cfg.CorpusBackend))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.MaxRetries = getEnvIntOrDefault("MAX_RETRIES", cfg.MaxRetries)
	cfg.FetchWorkers = getEnvIntOrDefault("FETCH_WORKERS", cfg.FetchWorkers)
	cfg.MaxPageLoads = getEnvIntOrDefault("MAX_PAGE_LOADS", cfg.MaxPageLoads)
	cfg.PageTimeout = getEnvDurationOrDefault("PAGE_TIMEOUT", cfg.PageTimeout)
	cfg.RequestDelay = getEnvDurationOrDefault("REQUEST_DELAY", cfg.RequestDelay)
	cfg.RunTimeout = getEnvDurationOrDefault("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.UserAgent = getEnvOrDefault("USER_AGENT", cfg.UserAgent)

	if v := os.Getenv("EXCLUDED_LINK_PATTERNS"); v != "" {
		cfg.ExcludedLinkPatterns = splitList(v)
	}

	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SimilarityThreshold = val
		}
	}

	cfg.ListURLTemplate = getEnvOrDefault("LIST_URL_TEMPLATE", cfg.ListURLTemplate)
	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.TopicFilter = os.Getenv("TOPIC_FILTER") == "true"

	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.EnableHTTPMonitoring = os.Getenv("ENABLE_HTTP_MONITORING") == "true"
	cfg.MonitoringPort = getEnvOrDefault("MONITORING_PORT", cfg.MonitoringPort)

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("10s") or bare seconds ("10").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.ArchiveRoot == "" {
		return fmt.Errorf("ARCHIVE_ROOT must not be empty")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be at least 1")
	}
	if c.PageTimeout <= 0 {
		return fmt.Errorf("PAGE_TIMEOUT must be positive")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("REQUEST_DELAY must not be negative")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if !strings.Contains(c.ListURLTemplate, "%s") {
		return fmt.Errorf("LIST_URL_TEMPLATE must contain %%s for the date")
	}

	switch c.CorpusBackend {
	case BackendFile:
	case BackendPostgres, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for CORPUS_BACKEND=%s", c.CorpusBackend)
		}
	default:
		return fmt.Errorf("CORPUS_BACKEND must be 'file', 'postgres' or 'sqlite'")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json'")
	}
	return nil
}

// Yesterday returns the start of the previous calendar day in the configured zone.
func (c *Config) Yesterday(now time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day()-1, 0, 0, 0, 0, loc)
}

// ParseDay parses a YYYY-MM-DD flag value in the configured zone.
func (c *Config) ParseDay(s string) (time.Time, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

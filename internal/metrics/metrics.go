package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsrank"

var (
	candidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_processed_total",
		Help:      "Candidates handed to the value fetcher",
	})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_results_total",
		Help:      "Value fetch outcomes by status",
	}, []string{"status"})

	fetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempt_failures_total",
		Help:      "Failed page load attempts by class",
	}, []string{"class"})

	filteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filtered_total",
		Help:      "Entries removed by the ranking or archive stage",
	}, []string{"reason"})

	archivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_archived_total",
		Help:      "Entries appended to the archive",
	})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of collect and rank runs",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"command"})

	healthy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "healthy",
		Help:      "1 if the last run succeeded, 0 otherwise",
	})
)

// Fetch result statuses, shared with the fetcher.
const (
	StatusScored    = "scored"
	StatusSkipped   = "skipped"
	StatusExhausted = "exhausted"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CandidatesProcessed  int64
	ValuesScored         int64
	FetchAttemptsFailed  int64
	FetchTimeouts        int64
	FetchExhausted       int64
	FetchSkipped         int64
	SentinelFiltered     int64
	DuplicatesFiltered   int64
	NearDuplicatesLogged int64
	EntriesArchived      int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	// health mirrors IsHealthy into Prometheus; only set on Global.
	health prometheus.Gauge
}

var Global = newGlobal()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func newGlobal() *Metrics {
	m := New()
	m.health = healthy
	m.health.Set(1)
	return m
}

func (m *Metrics) IncrementCandidatesProcessed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesProcessed += int64(n)
	candidatesTotal.Add(float64(n))
}

// RecordFetch counts one finished fetch by its final status.
func (m *Metrics) RecordFetch(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch status {
	case StatusScored:
		m.ValuesScored++
	case StatusSkipped:
		m.FetchSkipped++
	case StatusExhausted:
		m.FetchExhausted++
	}
	fetchTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementFetchFailure(timeout bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchAttemptsFailed++
	class := "error"
	if timeout {
		m.FetchTimeouts++
		class = "timeout"
	}
	fetchFailuresTotal.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementSentinelFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentinelFiltered += int64(n)
	filteredTotal.WithLabelValues("sentinel").Add(float64(n))
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
	filteredTotal.WithLabelValues("duplicate").Inc()
}

func (m *Metrics) IncrementNearDuplicates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NearDuplicatesLogged++
}

func (m *Metrics) IncrementArchived(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesArchived += int64(n)
	archivedTotal.Add(float64(n))
}

func (m *Metrics) RecordProcessingTime(command string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
	runDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
	if m.health != nil {
		m.health.Set(1)
	}
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
	if m.health != nil {
		m.health.Set(0)
	}
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"candidates_processed":       m.CandidatesProcessed,
		"values_scored":              m.ValuesScored,
		"fetch_attempts_failed":      m.FetchAttemptsFailed,
		"fetch_timeouts":             m.FetchTimeouts,
		"fetch_exhausted":            m.FetchExhausted,
		"fetch_skipped":              m.FetchSkipped,
		"sentinel_filtered":          m.SentinelFiltered,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"near_duplicates_detected":   m.NearDuplicatesLogged,
		"entries_archived":           m.EntriesArchived,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}

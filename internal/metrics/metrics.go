package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Results of one IndexFile call.
const (
	ResultIndexed = "indexed"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

var (
	// Indexer metrics
	indexFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acta_index_files_total",
			Help: "Total number of transcript files processed, by result",
		},
		[]string{"result"},
	)

	indexEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acta_index_events_total",
			Help: "Total number of events written to the index",
		},
	)

	indexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acta_index_duration_seconds",
			Help:    "Time spent indexing one transcript file",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Watcher metrics
	watchTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acta_watch_triggers_total",
			Help: "Total number of debounced re-index triggers from the file watcher",
		},
	)

	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acta_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	initOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			indexFilesTotal,
			indexEventsTotal,
			indexDuration,
			watchTriggersTotal,
			httpRequestsTotal,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordIndexFile records the outcome of indexing one file.
func RecordIndexFile(result string, events int, d time.Duration) {
	indexFilesTotal.WithLabelValues(result).Inc()
	if events > 0 {
		indexEventsTotal.Add(float64(events))
	}
	if result == ResultIndexed {
		indexDuration.Observe(d.Seconds())
	}
}

// RecordWatchTrigger records one debounced watcher dispatch.
func RecordWatchTrigger() {
	watchTriggersTotal.Inc()
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(method, path, status string) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

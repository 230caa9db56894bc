// Package metrics exposes Prometheus collectors for the leadscout service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal             *prometheus.CounterVec
	leadsEmittedTotal     prometheus.Counter
	providerAttemptsTotal *prometheus.CounterVec
	crawlPollsTotal       prometheus.Counter
	crawlAbortsTotal      *prometheus.CounterVec
	activeWorkers         prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_runs_total",
				Help: "Total number of discovery runs processed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		leadsEmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_leads_emitted_total",
				Help: "Total number of leads pushed to the output sink.",
			},
		)

		providerAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_provider_attempts_total",
				Help: "Query-generation provider attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		crawlPollsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_crawl_polls_total",
				Help: "Total poll iterations against crawl job output streams.",
			},
		)

		crawlAbortsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_crawl_aborts_total",
				Help: "Crawl jobs aborted by the controller, labeled by reason.",
			},
			[]string{"reason"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_active_workers",
				Help: "Number of live workers consuming the run queue.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveRun records one terminal run status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveLeads adds to the emitted-lead counter.
func ObserveLeads(count int) {
	if leadsEmittedTotal == nil || count <= 0 {
		return
	}
	leadsEmittedTotal.Add(float64(count))
}

// ObserveProviderAttempt records one provider attempt outcome.
func ObserveProviderAttempt(provider, outcome string) {
	if providerAttemptsTotal == nil {
		return
	}
	providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObservePoll counts one poll iteration.
func ObservePoll() {
	if crawlPollsTotal == nil {
		return
	}
	crawlPollsTotal.Inc()
}

// ObserveAbort records one controller-initiated abort with its reason.
func ObserveAbort(reason string) {
	if crawlAbortsTotal == nil {
		return
	}
	crawlAbortsTotal.WithLabelValues(reason).Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// WorkerFinished decrements the active worker gauge.
func WorkerFinished() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// ObserveHTTPRequest records counters and latency for one HTTP request.
func ObserveHTTPRequest(method, route string, status int, dur time.Duration) {
	if httpRequestsTotal == nil || httpRequestDuration == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/alert-triage/internal/models"
)

const (
	// OutcomeSuccess labels scoring runs that produced output.
	OutcomeSuccess = "success"
	// OutcomeError labels runs aborted by config, input or cancellation errors.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_triage",
			Name:      "runs_total",
			Help:      "Total number of scoring runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alert_triage",
			Name:      "run_seconds",
			Help:      "Scoring run latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	alertsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_triage",
			Name:      "alerts_scored_total",
			Help:      "Alerts scored, partitioned by priority tier.",
		},
		[]string{"priority"},
	)

	alertsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alert_triage",
			Name:      "alerts_skipped_total",
			Help:      "Alerts excluded from output because they were malformed or their chunk failed.",
		},
	)

	chunkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "alert_triage",
			Name:      "chunk_failures_total",
			Help:      "Chunks whose processing failed unexpectedly.",
		},
	)

	chunkDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alert_triage",
			Name:      "chunk_seconds",
			Help:      "Per-chunk scoring latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_triage",
			Name:      "cache_lookups_total",
			Help:      "Scoring response cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches alert-triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		alertsScoredTotal,
		alertsSkippedTotal,
		chunkFailuresTotal,
		chunkDurationSeconds,
		cacheLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveSummary adds the per-tier and skipped counts of a finished run.
func ObserveSummary(summary models.Summary) {
	alertsScoredTotal.WithLabelValues(string(models.PriorityHigh)).Add(float64(summary.High))
	alertsScoredTotal.WithLabelValues(string(models.PriorityMedium)).Add(float64(summary.Medium))
	alertsScoredTotal.WithLabelValues(string(models.PriorityLow)).Add(float64(summary.Low))
	alertsSkippedTotal.Add(float64(summary.Skipped))
}

// ObserveChunk records one chunk's processing time and whether it failed.
func ObserveChunk(duration time.Duration, failed bool) {
	if failed {
		chunkFailuresTotal.Inc()
	}
	if duration < 0 {
		duration = 0
	}
	chunkDurationSeconds.Observe(duration.Seconds())
}

// ObserveCacheLookup counts a response cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

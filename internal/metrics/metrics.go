package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gosubarr",
		Name:      "provider_attempts_total",
		Help:      "Provider calls, including retries.",
	}, []string{"provider", "operation"})

	ProviderQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gosubarr",
		Name:      "provider_queries_total",
		Help:      "Provider queries by final outcome.",
	}, []string{"provider", "outcome"})

	ProviderCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gosubarr",
		Name:      "provider_cache_hits_total",
		Help:      "Provider queries answered from the result cache.",
	}, []string{"provider"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gosubarr",
		Name:      "provider_query_seconds",
		Help:      "Provider query latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	SubtitlesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gosubarr",
		Name:      "subtitles_stored_total",
		Help:      "Subtitles persisted, by provider and storage kind.",
	}, []string{"provider", "storage"})

	TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gosubarr",
		Name:      "task_runs_total",
		Help:      "Scheduler task runs by result.",
	}, []string{"task", "result"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gosubarr",
		Name:      "task_duration_seconds",
		Help:      "Scheduler task run duration.",
		Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
	}, []string{"task"})
)

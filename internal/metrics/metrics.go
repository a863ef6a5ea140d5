package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_requests_total",
			Help: "Total number of API requests per route",
		},
		[]string{"route"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratehub_request_duration_seconds",
			Help:    "Request duration in seconds per route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_request_errors_total",
			Help: "Total number of error responses per route and status code",
		},
		[]string{"route", "code"},
	)
)

var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_cache_lookups_total",
			Help: "Rate cache lookups by operation and result (hit, miss, failed)",
		},
		[]string{"operation", "result"},
	)

	ProviderAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_provider_attempts_total",
			Help: "Provider chain attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderChainExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_provider_chain_exhausted_total",
			Help: "Requests for which every configured provider failed",
		},
		[]string{"operation"},
	)

	HistoryPersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratehub_history_persist_failures_total",
			Help: "Snapshot writes that failed and were skipped",
		},
	)

	HistorySnapshotsInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratehub_history_snapshots_inserted_total",
			Help: "Snapshots written to the history store (duplicates excluded)",
		},
	)

	BackfillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_history_backfills_total",
			Help: "Backfill-on-read attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func RecordCacheLookup(operation, result string) {
	CacheLookupsTotal.WithLabelValues(operation, result).Inc()
}

func RecordProviderAttempt(provider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquires = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_db_pool_acquires",
			Help: "Cumulative number of connection acquires per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, total, idle, acquired float64, acquires int64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
	DBPoolAcquires.WithLabelValues(driver).Set(float64(acquires))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratehub_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratehub_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}

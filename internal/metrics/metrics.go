package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	postings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankcore",
			Subsystem: "ledger",
			Name:      "postings_total",
			Help:      "Ledger postings by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	postedCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankcore",
			Subsystem: "ledger",
			Name:      "posted_cents_total",
			Help:      "Amount moved by successful postings, in cents.",
		},
		[]string{"kind"},
	)

	trades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bankcore",
			Subsystem: "market",
			Name:      "trades_total",
			Help:      "Executed trades.",
		},
	)

	openOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bankcore",
			Subsystem: "market",
			Name:      "matching_in_flight",
			Help:      "Orders currently being matched.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankcore",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and success.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bankcore",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankcore",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		postings,
		postedCents,
		trades,
		openOrders,
		jobRuns,
		jobDuration,
		logins,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordPosting counts a posting attempt; cents only count on success.
func RecordPosting(kind string, cents int64, err error) {
	if err != nil {
		postings.WithLabelValues(kind, "error").Inc()
		return
	}
	postings.WithLabelValues(kind, "ok").Inc()
	postedCents.WithLabelValues(kind).Add(float64(cents))
}

func RecordTrade() {
	trades.Inc()
}

func MatchingStarted() { openOrders.Inc() }
func MatchingDone()    { openOrders.Dec() }

func RecordJob(job string, started time.Time, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	jobRuns.WithLabelValues(job, success).Inc()
	jobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func RecordLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

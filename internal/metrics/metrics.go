package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	MatchDecisions    *prometheus.CounterVec
	SearchDuration    *prometheus.HistogramVec
	SearchReleases    *prometheus.CounterVec
	IndexerErrors     *prometheus.CounterVec
	QueueTransitions  *prometheus.CounterVec
	QueueAccepted     *prometheus.CounterVec
	Stalls            prometheus.Counter
	RetryOutcomes     *prometheus.CounterVec
	JobRuns           *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
	ScorerLoads       prometheus.Counter
	MonitorIterations *prometheus.CounterVec
}

// Default is registered with the default Prometheus registry.
var Default = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		MatchDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_match_decisions_total",
			Help: "Match decisions by method and outcome",
		}, []string{"method", "outcome"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scenarr_search_duration_seconds",
			Help:    "Time spent in an orchestrated search",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		SearchReleases: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_search_releases_total",
			Help: "Releases seen by each orchestrator stage",
		}, []string{"stage"}),
		IndexerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_indexer_errors_total",
			Help: "Failed indexer queries",
		}, []string{"indexer"}),
		QueueTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_queue_transitions_total",
			Help: "Queue item status transitions",
		}, []string{"from", "to"}),
		QueueAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_queue_accepted_total",
			Help: "Acceptance attempts by outcome",
		}, []string{"outcome"}),
		Stalls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scenarr_stalled_downloads_total",
			Help: "Downloads paused by the stall heuristic",
		}),
		RetryOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_retry_outcomes_total",
			Help: "Submission retry outcomes",
		}, []string{"outcome"}),
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_job_runs_total",
			Help: "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scenarr_job_duration_seconds",
			Help:    "Scheduled job run time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job"}),
		ScorerLoads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scenarr_scorer_loads_total",
			Help: "Relevance model loads",
		}),
		MonitorIterations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarr_monitor_iterations_total",
			Help: "Monitor poll iterations by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

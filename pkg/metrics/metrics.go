package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	ErrorTotal      *prometheus.CounterVec

	// Summary stream metrics
	StreamsStarted   prometheus.Counter
	StreamsFinished  *prometheus.CounterVec
	StreamFragments  prometheus.Counter
	StreamDuration   prometheus.Histogram
	StreamsInFlight  prometheus.Gauge
	SummarizerErrors *prometheus.CounterVec

	// Identity metrics
	TokensIssued  prometheus.Counter
	TokensRevoked prometheus.Counter
	LoginFailures prometheus.Counter

	// Revoked-token sweeper metrics
	RevocationsSwept prometheus.Counter
	SweepFailures    prometheus.Counter

	// Credential cache metrics, recorded by clients
	CredentialLookups *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
// A nil reg registers with the default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		ErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "path", "type"}),

		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "streams_started_total",
			Help:      "Total number of summary streams opened",
		}),
		StreamsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "streams_finished_total",
			Help:      "Total number of summary streams finished, by outcome",
		}, []string{"outcome"}),
		StreamFragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "fragments_total",
			Help:      "Total number of text fragments written to summary streams",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "stream_duration_seconds",
			Help:      "Time from stream open to close",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		StreamsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "streams_in_flight",
			Help:      "Current number of open summary streams",
		}),
		SummarizerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "summarizer_errors_total",
			Help:      "Total number of summarizer failures",
		}, []string{"summarizer"}),

		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "tokens_issued_total",
			Help:      "Total number of bearer tokens issued",
		}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "tokens_revoked_total",
			Help:      "Total number of bearer tokens revoked by sign-out",
		}),
		LoginFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "login_failures_total",
			Help:      "Total number of failed sign-in attempts",
		}),

		RevocationsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "revocations_swept_total",
			Help:      "Total number of expired revocation rows deleted",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sweep_failures_total",
			Help:      "Total number of failed revocation sweeps",
		}),

		CredentialLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "lookups_total",
			Help:      "Credential cache lookups, by result (hit, issued, expired, failed)",
		}, []string{"result"}),
	}
}

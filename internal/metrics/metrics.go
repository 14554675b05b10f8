// Package metrics exposes Prometheus instrumentation for searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the search pipeline. All methods are
// safe to call on a nil receiver.
type Metrics struct {
	// Endpoint calls by jurisdiction and outcome (ok, timeout, network, ...)
	Requests *prometheus.CounterVec

	// Endpoint call latency by jurisdiction
	RequestDuration *prometheus.HistogramVec

	// Wall time from dispatching a group to its barrier
	GroupDuration prometheus.Histogram

	// Sessions by terminal state
	Sessions *prometheus.CounterVec

	// Results in terminal snapshots
	ResultsDelivered prometheus.Counter
}

// New registers every metric with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_endpoint_requests_total",
			Help: "Jurisdiction endpoint calls by outcome",
		}, []string{"jurisdiction", "outcome"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parcel_endpoint_request_duration_seconds",
			Help:    "Duration of jurisdiction endpoint calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"jurisdiction"}),

		GroupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parcel_group_duration_seconds",
			Help:    "Duration of a dispatch group from fan-out to barrier",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parcel_sessions_total",
			Help: "Search sessions by terminal state",
		}, []string{"state"}),

		ResultsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "parcel_results_delivered_total",
			Help: "Results delivered in terminal snapshots",
		}),
	}
}

// ObserveRequest records one endpoint call.
func (m *Metrics) ObserveRequest(jurisdiction, outcome string, d time.Duration) {
	if m != nil {
		m.Requests.WithLabelValues(jurisdiction, outcome).Inc()
		m.RequestDuration.WithLabelValues(jurisdiction).Observe(d.Seconds())
	}
}

// ObserveGroup records the duration of one settled group.
func (m *Metrics) ObserveGroup(d time.Duration) {
	if m != nil {
		m.GroupDuration.Observe(d.Seconds())
	}
}

// IncrementSession records a session reaching a terminal state.
func (m *Metrics) IncrementSession(state string, results int) {
	if m != nil {
		m.Sessions.WithLabelValues(state).Inc()
		m.ResultsDelivered.Add(float64(results))
	}
}

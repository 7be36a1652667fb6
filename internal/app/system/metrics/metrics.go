// Package metrics holds the Prometheus collectors for authorization decisions
// and administrative mutations.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by result, reason and resolution path.",
		},
		[]string{"result", "reason", "path"},
	)

	decideDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_decide_duration_seconds",
			Help:    "Time spent resolving one authorization decision.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_mutations_total",
			Help: "Administrative mutations by operation and outcome.",
		},
		[]string{"op", "result"},
	)

	claimsPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_claims_publish_total",
			Help: "Claim set publish attempts by outcome (attached, no_session, error).",
		},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(decisionsTotal, decideDuration, mutationsTotal, claimsPublishTotal)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records one decision. result is "allow", "deny" or "error".
func ObserveDecision(result, reason, path string, took time.Duration) {
	decisionsTotal.WithLabelValues(result, reason, path).Inc()
	decideDuration.WithLabelValues(path).Observe(took.Seconds())
}

// ObserveMutation records one mutation outcome ("ok" or an error kind).
func ObserveMutation(op, result string) {
	mutationsTotal.WithLabelValues(op, result).Inc()
}

// ObservePublish records a claims publish outcome.
func ObservePublish(outcome string) {
	claimsPublishTotal.WithLabelValues(outcome).Inc()
}

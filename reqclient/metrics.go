/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package reqclient

import "github.com/prometheus/client_golang/prometheus"

// OutcomeSuccess is the outcome label of a call that succeeded.
const OutcomeSuccess = "success"

// MetricsCollector collects statistics of calls.
type MetricsCollector interface {
	IncAttempts(requestType string)
	IncRetries(requestType string, reason Kind)
	IncCalls(requestType string, outcome string)
}

// PrometheusMetrics implements MetricsCollector with Prometheus counters.
type PrometheusMetrics struct {
	AttemptsTotal *prometheus.CounterVec
	RetriesTotal  *prometheus.CounterVec
	CallsTotal    *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reqclient_attempts_total",
			Help:      "Number of transport attempts made by the request client.",
		}, []string{"type"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reqclient_retries_total",
			Help:      "Number of retries scheduled by the request client, by the failure that caused them.",
		}, []string{"type", "reason"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reqclient_calls_total",
			Help:      "Number of finished calls, by outcome (success or error kind).",
		}, []string{"type", "outcome"}),
	}
}

// MustRegister registers metrics in reg (prometheus.DefaultRegisterer when nil).
func (pm *PrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(pm.AttemptsTotal, pm.RetriesTotal, pm.CallsTotal)
}

// Unregister removes metrics from reg (prometheus.DefaultRegisterer when nil).
func (pm *PrometheusMetrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.Unregister(pm.AttemptsTotal)
	reg.Unregister(pm.RetriesTotal)
	reg.Unregister(pm.CallsTotal)
}

// IncAttempts implements MetricsCollector.
func (pm *PrometheusMetrics) IncAttempts(requestType string) {
	pm.AttemptsTotal.WithLabelValues(requestType).Inc()
}

// IncRetries implements MetricsCollector.
func (pm *PrometheusMetrics) IncRetries(requestType string, reason Kind) {
	pm.RetriesTotal.WithLabelValues(requestType, string(reason)).Inc()
}

// IncCalls implements MetricsCollector.
func (pm *PrometheusMetrics) IncCalls(requestType string, outcome string) {
	pm.CallsTotal.WithLabelValues(requestType, outcome).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAttempts(string)      {}
func (disabledMetrics) IncRetries(string, Kind) {}
func (disabledMetrics) IncCalls(string, string) {}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetricsCollector collects statistics of the RateLimit middleware.
type RateLimitMetricsCollector interface {
	IncRejects(policy string, dryRun bool)
}

// RateLimitPrometheusMetrics counts rejected requests in Prometheus.
type RateLimitPrometheusMetrics struct {
	RejectsTotal *prometheus.CounterVec
}

var _ RateLimitMetricsCollector = (*RateLimitPrometheusMetrics)(nil)

// NewRateLimitPrometheusMetrics creates a new RateLimitPrometheusMetrics.
func NewRateLimitPrometheusMetrics(namespace string) *RateLimitPrometheusMetrics {
	return &RateLimitPrometheusMetrics{
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejects_total",
			Help:      "Number of requests rejected by rate limiting.",
		}, []string{"policy", "dry_run"}),
	}
}

// MustRegister registers metrics in reg (prometheus.DefaultRegisterer when nil).
func (m *RateLimitPrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.RejectsTotal)
}

// Unregister removes metrics from reg (prometheus.DefaultRegisterer when nil).
func (m *RateLimitPrometheusMetrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.Unregister(m.RejectsTotal)
}

// IncRejects increments the counter of rejected requests.
func (m *RateLimitPrometheusMetrics) IncRejects(policy string, dryRun bool) {
	m.RejectsTotal.WithLabelValues(policy, strconv.FormatBool(dryRun)).Inc()
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRequestType is used in metrics when neither the context nor the options name the request type.
const DefaultRequestType = "default"

// ClassifyRequest produces a non-parameterized summary ("POST chat_completion") for the request.
// By default, it's the method followed by the request type.
type ClassifyRequest func(r *http.Request, requestType string) string

// MetricsCollector is an interface for collecting metrics for client requests.
type MetricsCollector interface {
	// RequestDuration observes the duration of the request and the status code.
	RequestDuration(requestType, host, summary, status string, elapsed time.Duration)
}

// PrometheusMetricsCollector is a Prometheus metrics collector.
type PrometheusMetricsCollector struct {
	// Durations is a histogram of the http client requests durations.
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_client_request_duration_seconds",
			Help:      "A histogram of the http client requests durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300, 600},
		}, []string{"type", "remote_address", "summary", "status"}),
	}
}

// MustRegister registers metrics in reg (prometheus.DefaultRegisterer when nil).
func (p *PrometheusMetricsCollector) MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.Durations)
}

// Unregister removes metrics from reg (prometheus.DefaultRegisterer when nil).
func (p *PrometheusMetricsCollector) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.Unregister(p.Durations)
}

// RequestDuration observes the duration of the request and the status code.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, host, summary, status string, elapsed time.Duration) {
	p.Durations.WithLabelValues(requestType, host, summary, status).Observe(elapsed.Seconds())
}

// MetricsRoundTripperOpts represents an options for MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	// RequestType is used when the context doesn't carry one (see NewContextWithRequestType).
	RequestType string

	// Collector is a metrics collector.
	Collector MetricsCollector

	// ClassifyRequest overrides the default summary label.
	ClassifyRequest ClassifyRequest
}

// MetricsRoundTripper is an HTTP transport that measures requests done.
type MetricsRoundTripper struct {
	Delegate http.RoundTripper
	Opts     MetricsRoundTripperOpts
}

// NewMetricsRoundTripper creates an HTTP transport that measures requests done.
func NewMetricsRoundTripper(delegate http.RoundTripper, collector MetricsCollector) http.RoundTripper {
	return NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{Collector: collector})
}

// NewMetricsRoundTripperWithOpts creates an HTTP transport that measures requests done.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, Opts: opts}
}

// RoundTrip measures external requests done.
func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Collector == nil {
		return rt.Delegate.RoundTrip(r)
	}

	status := "0"
	start := time.Now()

	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	requestType := GetRequestTypeFromContext(r.Context())
	if requestType == "" {
		requestType = rt.Opts.RequestType
	}
	rt.Opts.Collector.RequestDuration(requestType, r.URL.Host, rt.summary(r, requestType), status, time.Since(start))
	return resp, err
}

func (rt *MetricsRoundTripper) summary(r *http.Request, requestType string) string {
	if rt.Opts.ClassifyRequest != nil {
		return rt.Opts.ClassifyRequest(r, requestType)
	}
	return r.Method + " " + requestType
}

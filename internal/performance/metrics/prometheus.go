package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faithtech/sitewalk/internal/behavior"
)

const namespace = "sitewalk"

// PrometheusReporter exports check failures and request durations on its
// own registry.
type PrometheusReporter struct {
	registry *prometheus.Registry
	failures *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusReporter creates and registers the collectors.
func NewPrometheusReporter() *PrometheusReporter {
	reg := prometheus.NewRegistry()

	p := &PrometheusReporter{
		registry: reg,
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Failed health checks by page and failure kind.",
		}, []string{"name", "kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent by page and status code.",
		}, []string{"name", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time to response headers by page.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"name"}),
	}
	reg.MustRegister(p.failures, p.requests, p.duration)
	return p
}

// ReportFailure implements behavior.Reporter.
func (p *PrometheusReporter) ReportFailure(f behavior.Failure) {
	p.failures.WithLabelValues(f.Name, f.Kind.String()).Inc()
}

// ObserveRequest records a completed request. A zero status means the
// request never got a response.
func (p *PrometheusReporter) ObserveRequest(name string, status int, elapsed time.Duration) {
	p.requests.WithLabelValues(name, strconv.Itoa(status)).Inc()
	if status != 0 {
		p.duration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// Registry exposes the underlying registry.
func (p *PrometheusReporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusReporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ behavior.Reporter = (*PrometheusReporter)(nil)

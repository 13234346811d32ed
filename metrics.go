package spacetraveling

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/spacetraveling/blog"
)

const metricsNamespace = "spacetraveling"

// Metrics holds the collectors of one App. Each App owns its registry so
// several can coexist in a process (tests create many).
type Metrics struct {
	Registry *prometheus.Registry

	cmsRequests   *prometheus.CounterVec
	cmsDuration   *prometheus.HistogramVec
	regenerations *prometheus.CounterVec
	skipped       prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cmsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cms_requests_total",
			Help:      "Outgoing requests to the content repository and banner host.",
		}, []string{"code", "method"}),
		cmsDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cms_request_duration_seconds",
			Help:      "Latency of outgoing requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "page_generations_total",
			Help:      "Page generations by kind and result.",
		}, []string{"kind", "result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "malformed_documents_skipped_total",
			Help:      "Documents dropped because they failed validation.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cmsRequests,
		m.cmsDuration,
		m.regenerations,
		m.skipped,
	)
	return m
}

// instrumentClient returns a copy of c whose transport records request
// counts and latencies.
func (m *Metrics) instrumentClient(c *http.Client) *http.Client {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	out := *c
	out.Transport = promhttp.InstrumentRoundTripperCounter(m.cmsRequests,
		promhttp.InstrumentRoundTripperDuration(m.cmsDuration, next))
	return &out
}

// observeGeneration counts one page generation.
func (m *Metrics) observeGeneration(kind string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, blog.ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.regenerations.WithLabelValues(kind, result).Inc()
}

// registerPageGauge exposes the number of pages currently held in memory.
func (m *Metrics) registerPageGauge(count func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "cached_pages",
		Help:      "Generated pages held in memory.",
	}, func() float64 { return float64(count()) }))
}

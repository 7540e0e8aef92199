// Package metrics exposes run statistics in the Prometheus text format so CI
// hosts can pick them up through the node exporter textfile collector.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "verify_links"

// Metrics holds the collectors for one run. All methods are safe on a nil
// receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	links         *prometheus.CounterVec
	cacheHits     prometheus.Gauge
	pages         prometheus.Gauge
	parseFailures prometheus.Gauge
	duration      prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests made for external links, by method and status class.",
		}, []string{"method", "status"}),
		links: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Links checked, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		cacheHits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "external_cache_hits",
			Help:      "External link checks answered from the run cache.",
		}),
		pages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pages",
			Help:      "HTML pages discovered in the build directory.",
		}),
		parseFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "page_parse_failures",
			Help:      "Pages whose HTML could not be parsed cleanly.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest counts one HTTP request. status 0 means a transport error.
func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, statusClass(status)).Inc()
}

// ObserveLink counts one resolved link.
func (m *Metrics) ObserveLink(kind, outcome string) {
	if m == nil {
		return
	}
	m.links.WithLabelValues(kind, outcome).Inc()
}

// SetRun records the run-level figures.
func (m *Metrics) SetRun(pages, parseFailures int, cacheHits int64, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.pages.Set(float64(pages))
	m.parseFailures.Set(float64(parseFailures))
	m.cacheHits.Set(float64(cacheHits))
	m.duration.Set(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes every collector to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

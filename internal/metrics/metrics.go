// Package metrics exposes Prometheus collectors for model loading and
// classification on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lesion"

type Manager struct {
	registry *prometheus.Registry

	loadDuration    prometheus.Histogram
	loadOutcomes    *prometheus.CounterVec
	modelReady      prometheus.Gauge
	classifications *prometheus.CounterVec
	classifyLatency prometheus.Histogram
}

func New() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auto := promauto.With(reg)

	return &Manager{
		registry: reg,
		loadDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Time from loader start to outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		loadOutcomes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model load attempts by outcome.",
		}, []string{"outcome"}),
		modelReady: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "ready",
			Help:      "1 once a model handle is available.",
		}),
		classifications: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "requests_total",
			Help:      "Classification requests by outcome.",
		}, []string{"outcome"}),
		classifyLatency: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "duration_seconds",
			Help:      "Classification latency including preprocessing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveLoad implements loader.Observer.
func (m *Manager) ObserveLoad(elapsed time.Duration, err error) {
	m.loadDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.loadOutcomes.WithLabelValues("failure").Inc()
		return
	}
	m.loadOutcomes.WithLabelValues("success").Inc()
	m.modelReady.Set(1)
}

// ObserveClassification implements classifier.Metrics.
func (m *Manager) ObserveClassification(outcome string, elapsed time.Duration) {
	m.classifications.WithLabelValues(outcome).Inc()
	m.classifyLatency.Observe(elapsed.Seconds())
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

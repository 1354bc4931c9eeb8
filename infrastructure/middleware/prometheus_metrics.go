// Package middleware provides cross-cutting concerns for the scoring
// engine, such as metrics collection.
package middleware

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arenalabs/go-arena/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// It provides real-time monitoring of session activity, token and cost
// accounting, and grading performance.
//
// Metric families are created lazily on first observation. The label
// set of the first observation fixes the family's label schema; later
// observations with missing labels report empty values for them.
type PrometheusMetrics struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a collector registering metrics in the
// default Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWithRegisterer creates a collector registering
// metrics with the given registerer. Tests pass a private registry to
// avoid duplicate-registration panics across test cases.
func NewPrometheusMetricsWithRegisterer(reg prometheus.Registerer) *PrometheusMetrics {
	return &PrometheusMetrics{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
	}
}

// RecordLatency implements ports.MetricsCollector by observing the
// duration in seconds in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector by incrementing a
// Prometheus counter.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	vec, ok := pm.counters[metric]
	if !ok {
		keys := sortedKeys(labels)
		vec = promauto.With(pm.registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: metric,
				Help: "Counter recorded by the scoring engine.",
			},
			keys,
		)
		pm.counters[metric] = vec
		pm.labelKeys["counter:"+metric] = keys
	}
	values := pm.labelValues("counter:"+metric, labels)
	pm.mu.Unlock()

	vec.WithLabelValues(values...).Add(value)
}

// RecordGauge implements ports.MetricsCollector by setting a Prometheus
// gauge.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	vec, ok := pm.gauges[metric]
	if !ok {
		keys := sortedKeys(labels)
		vec = promauto.With(pm.registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metric,
				Help: "Gauge recorded by the scoring engine.",
			},
			keys,
		)
		pm.gauges[metric] = vec
		pm.labelKeys["gauge:"+metric] = keys
	}
	values := pm.labelValues("gauge:"+metric, labels)
	pm.mu.Unlock()

	vec.WithLabelValues(values...).Set(value)
}

// RecordHistogram implements ports.MetricsCollector by observing a value
// in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	vec, ok := pm.histograms[metric]
	if !ok {
		keys := sortedKeys(labels)
		vec = promauto.With(pm.registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metric,
				Help:    "Histogram recorded by the scoring engine.",
				Buckets: prometheus.DefBuckets,
			},
			keys,
		)
		pm.histograms[metric] = vec
		pm.labelKeys["histogram:"+metric] = keys
	}
	values := pm.labelValues("histogram:"+metric, labels)
	pm.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// labelValues returns label values in the order fixed at family
// creation. Callers must hold pm.mu.
func (pm *PrometheusMetrics) labelValues(key string, labels map[string]string) []string {
	keys := pm.labelKeys[key]
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return values
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package metrics implements ports.MetricsCollector on Prometheus.
//
// Collectors are created lazily per metric name because callers supply label
// sets dynamically. A metric's label keys are fixed by its first observation;
// later observations with different keys are dropped rather than panicking,
// since a mislabeled metric must never take down an evaluation.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poidh-labs/sentinel/internal/ports"
)

// Prometheus records metrics into a prometheus.Registerer.
type Prometheus struct {
	namespace string
	reg       prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ ports.MetricsCollector = (*Prometheus)(nil)

// New creates a collector registering into reg; nil reg uses the default
// registry.
func New(namespace string, reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordLatency observes an operation duration in seconds.
func (p *Prometheus) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	keys := labelKeys(labels)

	p.mu.Lock()
	vec, ok := p.histograms[operation]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      operation + "_duration_seconds",
			Help:      "Duration of " + operation + " operations.",
			Buckets:   prometheus.DefBuckets,
		}, keys)
		if err := p.reg.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		p.histograms[operation] = vec
	}
	p.mu.Unlock()

	if m, err := vec.GetMetricWith(prometheus.Labels(nonNil(labels))); err == nil {
		m.Observe(duration.Seconds())
	}
}

// RecordCounter adds value to a counter.
func (p *Prometheus) RecordCounter(metric string, value float64, labels map[string]string) {
	keys := labelKeys(labels)

	p.mu.Lock()
	vec, ok := p.counters[metric]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      metric,
			Help:      "Count of " + metric + ".",
		}, keys)
		if err := p.reg.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		p.counters[metric] = vec
	}
	p.mu.Unlock()

	if m, err := vec.GetMetricWith(prometheus.Labels(nonNil(labels))); err == nil {
		m.Add(value)
	}
}

// RecordGauge sets a gauge's current value.
func (p *Prometheus) RecordGauge(metric string, value float64, labels map[string]string) {
	keys := labelKeys(labels)

	p.mu.Lock()
	vec, ok := p.gauges[metric]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metric,
			Help:      "Current value of " + metric + ".",
		}, keys)
		if err := p.reg.Register(vec); err != nil {
			p.mu.Unlock()
			return
		}
		p.gauges[metric] = vec
	}
	p.mu.Unlock()

	if m, err := vec.GetMetricWith(prometheus.Labels(nonNil(labels))); err == nil {
		m.Set(value)
	}
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(labels map[string]string) map[string]string {
	if labels == nil {
		return map[string]string{}
	}
	return labels
}

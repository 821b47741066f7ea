// Package telemetry holds the process metrics. Every metric starts as a noop
// and becomes a prometheus collector once InitializeTelemetry and InitMetrics run.
package telemetry

import (
	"net/http"

	"github.com/maxpert/pcbc/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "pcbc"

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

// Gauge is only ever set to a sampled value
type Gauge interface {
	Set(float64)
}

// CounterVec and GaugeVec resolve a labeled child by label values
type CounterVec interface {
	With(labels ...string) Counter
}

type GaugeVec interface {
	With(labels ...string) Gauge
}

// NoopStat satisfies Counter, Gauge and Histogram while metrics are disabled
type NoopStat struct{}

func (NoopStat) Observe(float64) {}
func (NoopStat) Set(float64)     {}
func (NoopStat) Inc()            {}
func (NoopStat) Add(float64)     {}

type noopCounterVec struct{}
type noopGaugeVec struct{}

func (noopCounterVec) With(...string) Counter { return NoopStat{} }
func (noopGaugeVec) With(...string) Gauge     { return NoopStat{} }

type counterVec struct{ vec *prometheus.CounterVec }
type gaugeVec struct{ vec *prometheus.GaugeVec }

func (c counterVec) With(labels ...string) Counter { return c.vec.WithLabelValues(labels...) }
func (g gaugeVec) With(labels ...string) Gauge     { return g.vec.WithLabelValues(labels...) }

// register adds c to the registry and hands it back typed
func register[C prometheus.Collector](c C) C {
	registry.MustRegister(c)
	return c
}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewCounter(prometheus.CounterOpts(opts(name, help))))
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	return counterVec{register(prometheus.NewCounterVec(prometheus.CounterOpts(opts(name, help)), labels))}
}

func NewGaugeVec(name, help string, labels []string) GaugeVec {
	if registry == nil {
		return noopGaugeVec{}
	}
	return gaugeVec{register(prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(name, help)), labels))}
}

func NewHistogramWithBuckets(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	o := opts(name, help)
	return register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}))
}

func opts(name, help string) prometheus.Opts {
	o := prometheus.Opts{Namespace: namespace, Name: name, Help: help}
	if cfg.Config != nil && cfg.Config.Transport.ClientID != "" {
		o.ConstLabels = prometheus.Labels{"client_id": cfg.Config.Transport.ClientID}
	}
	return o
}

// InitializeTelemetry creates the registry when prometheus is enabled.
// Metrics built before this call stay noops.
func InitializeTelemetry() {
	if !cfg.Config.Prometheus.Enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	log.Info().Msg("Prometheus metrics enabled, served at /metrics")
}

// GetMetricsHandler returns nil when metrics are disabled
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Reset drops the registry so that metrics created afterwards are noops again
func Reset() {
	registry = nil
}

// Package metrics provides Prometheus metrics collection for dataforge.
package metrics

import (
	"reflect"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/domain/names"
)

// Collector holds all Prometheus metrics for dataforge.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Data computation metrics
	ComputationsTotal    *prometheus.CounterVec
	ComputeDuration      *prometheus.HistogramVec
	ComputationsInFlight prometheus.Gauge

	// Config metrics
	ConfigChanges      *prometheus.CounterVec
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dataforge",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		ComputationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Name:      "data_computations_total",
				Help:      "Total number of data computations by result type and outcome",
			},
			[]string{"type", "result"},
		),
		ComputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dataforge",
				Name:      "data_compute_duration_seconds",
				Help:      "Data computation duration in seconds",
				Buckets:   []float64{.0001, .001, .01, .05, .1, .5, 1, 5, 30, 120},
			},
			[]string{"type"},
		),
		ComputationsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Name:      "data_computations_in_flight",
				Help:      "Number of data computations currently running",
			},
		),
		ConfigChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Name:      "config_changes_total",
				Help:      "Total number of change notifications delivered by a watched config",
			},
			[]string{"config", "kind"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Name:      "config_reloads_total",
				Help:      "Total number of successful meta file reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dataforge",
				Name:      "config_reload_errors_total",
				Help:      "Total number of meta file reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dataforge",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful meta file reload",
			},
		),
	}
}

// ComputeStarted implements data.Observer.
func (c *Collector) ComputeStarted(typ reflect.Type) {
	c.ComputationsInFlight.Inc()
}

// ComputeFinished implements data.Observer.
func (c *Collector) ComputeFinished(typ reflect.Type, elapsed time.Duration, err error) {
	c.ComputationsInFlight.Dec()
	label := TypeLabel(typ)
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ComputationsTotal.WithLabelValues(label, result).Inc()
	c.ComputeDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// WatchConfig counts the changes cfg reports under the given label.
// The returned function stops counting.
func (c *Collector) WatchConfig(label string, cfg *meta.Config) func() {
	owner := new(int)
	cfg.OnChange(owner, func(name names.Name, oldItem, newItem meta.Item) {
		c.ConfigChanges.WithLabelValues(label, changeKind(oldItem, newItem)).Inc()
	})
	return func() { cfg.RemoveListener(owner) }
}

// RecordReload records the outcome of a meta file reload.
func (c *Collector) RecordReload(at time.Time, err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// RecordRequest records one served HTTP request.
func (c *Collector) RecordRequest(method, route string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func changeKind(oldItem, newItem meta.Item) string {
	switch {
	case oldItem == nil:
		return "add"
	case newItem == nil:
		return "remove"
	default:
		return "update"
	}
}

// TypeLabel keeps metric cardinality bounded by the number of Go types.
func TypeLabel(typ reflect.Type) string {
	if typ == nil {
		return "unknown"
	}
	return typ.String()
}

// StatusClass maps a status code to "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}

// Ensure interface compliance.
var _ data.Observer = (*Collector)(nil)

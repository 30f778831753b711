// Package metrics exposes the agent's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billagent"

// Print results recorded by PrintAttempt.
const (
	PrintPrinted     = "printed"
	PrintUnavailable = "unavailable"
	PrintFailed      = "failed"
)

// Metrics holds every instrument the agent records. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	billsStored      *prometheus.CounterVec
	printAttempts    *prometheus.CounterVec
	retentionDeleted prometheus.Counter
	retentionSweeps  *prometheus.CounterVec
	printerAvailable prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		billsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_stored_total",
			Help:      "Bills written to the store, by endpoint.",
		}, []string{"endpoint"}),
		printAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_attempts_total",
			Help:      "Receipt print attempts, by result.",
		}, []string{"result"}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Bills removed by the retention sweep.",
		}),
		retentionSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_sweeps_total",
			Help:      "Retention sweeps run, by result.",
		}, []string{"result"}),
		printerAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "printer_available",
			Help:      "1 if the last printer probe succeeded, 0 otherwise.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.billsStored,
		m.printAttempts,
		m.retentionDeleted,
		m.retentionSweeps,
		m.printerAvailable,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BillStored(endpoint string) {
	if m == nil {
		return
	}
	m.billsStored.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) PrintAttempt(result string) {
	if m == nil {
		return
	}
	m.printAttempts.WithLabelValues(result).Inc()
}

// Sweep records one retention sweep. err is the sweep's error, if any.
func (m *Metrics) Sweep(deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.retentionSweeps.WithLabelValues("error").Inc()
		return
	}
	m.retentionSweeps.WithLabelValues("ok").Inc()
	m.retentionDeleted.Add(float64(deleted))
}

func (m *Metrics) PrinterAvailable(available bool) {
	if m == nil {
		return
	}
	if available {
		m.printerAvailable.Set(1)
	} else {
		m.printerAvailable.Set(0)
	}
}

func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Package metrics holds the process's Prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type Metrics struct {
	reg *prometheus.Registry

	Probes        *prometheus.CounterVec
	ProbesSkipped prometheus.Counter
	Notifications *prometheus.CounterVec
	Remediations  *prometheus.CounterVec
	StoreErrors   *prometheus.CounterVec
	TargetUp      *prometheus.GaugeVec
	ProbeLatency  prometheus.Histogram
	Cycles        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_probes_total",
			Help: "Probes performed, by outcome kind.",
		}, []string{"kind"}),
		ProbesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "sitewatch_probes_skipped_total",
			Help: "Probes skipped because the previous cycle for the target was still running.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_notifications_total",
			Help: "Notification dispatches, by action kind and result.",
		}, []string{"kind", "result"}),
		Remediations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_remediations_total",
			Help: "Remediation triggers, by result.",
		}, []string{"result"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sitewatch_store_errors_total",
			Help: "State store failures, by operation.",
		}, []string{"op"}),
		TargetUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sitewatch_target_up",
			Help: "1 if the target's canonical status is up, 0 if down, -1 if unknown.",
		}, []string{"target"}),
		ProbeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitewatch_probe_latency_seconds",
			Help:    "Probe latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "sitewatch_cycles_total",
			Help: "Scheduler cycles started.",
		}),
	}
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveProbe(o domain.ProbeOutcome) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(string(o.Kind)).Inc()
	m.ProbeLatency.Observe(o.LatencyMS / 1000)
}

func (m *Metrics) SetStatus(id domain.TargetID, s domain.Status) {
	if m == nil {
		return
	}
	v := -1.0
	switch s {
	case domain.StatusUp:
		v = 1
	case domain.StatusDown:
		v = 0
	}
	m.TargetUp.WithLabelValues(string(id)).Set(v)
}

func (m *Metrics) ObserveDispatch(a domain.Action, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	if a.Kind == domain.ActionRemediate {
		m.Remediations.WithLabelValues(result).Inc()
		return
	}
	m.Notifications.WithLabelValues(string(a.Kind), result).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.ProbesSkipped.Inc()
}

func (m *Metrics) CycleStarted() {
	if m == nil {
		return
	}
	m.Cycles.Inc()
}

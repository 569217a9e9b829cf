// Package metrics exposes Prometheus collectors for the tip service and the
// HTTP surface serving them.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	tips          *prometheus.CounterVec
	registrations *prometheus.CounterVec
	ledger        *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	pending       prometheus.Gauge
}

var (
	defaultOnce sync.Once
	defaultReg  *Metrics
)

// Default returns the process-wide collectors registered with the default
// Prometheus registerer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// New creates collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tipbot",
			Name:      "tips_total",
			Help:      "Tip attempts segmented by route and outcome.",
		}, []string{"route", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tipbot",
			Name:      "registrations_total",
			Help:      "Registration attempts segmented by outcome.",
		}, []string{"outcome"}),
		ledger: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tipbot",
			Subsystem: "ledger",
			Name:      "request_duration_seconds",
			Help:      "Latency of ledger calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tipbot",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests segmented by method and status code.",
		}, []string{"method", "code"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tipbot",
			Name:      "pending_attempts",
			Help:      "Journaled tips whose outcome is not settled.",
		}),
	}
	reg.MustRegister(m.tips, m.registrations, m.ledger, m.requests, m.pending)
	return m
}

func (m *Metrics) ObserveTip(route, outcome string) {
	if m == nil {
		return
	}
	m.tips.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) ObserveRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// ObserveLedger records the duration of a ledger call started at start.
func (m *Metrics) ObserveLedger(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledger.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRequest(method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

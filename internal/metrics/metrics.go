// Package metrics exports session and dashboard instrumentation to
// Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/rpc"
)

const namespace = "wadash"

var _ rpc.Metrics = (*RPC)(nil)

// RPC implements rpc.Metrics.
type RPC struct {
	calls           *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	pending         prometheus.Gauge
	events          *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	connected       prometheus.Gauge
	connectAttempts *prometheus.CounterVec
}

// NewRPC creates the session collectors and registers them with reg.
func NewRPC(reg prometheus.Registerer) *RPC {
	m := &RPC{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "RPC calls by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "RPC call duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_calls",
			Help:      "Calls waiting for a response.",
		}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "events_total",
				Help:      "Backend events received by name.",
			},
			[]string{"event"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "frames_dropped_total",
				Help:      "Inbound frames or events dropped by reason.",
			},
			[]string{"reason"},
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "connected",
			Help:      "1 while the session is connected.",
		}),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "connect_attempts_total",
				Help:      "Connect attempts by result.",
			},
			[]string{"success"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.calls, m.callDuration, m.pending, m.events, m.dropped, m.connected, m.connectAttempts)
	}
	return m
}

// CallFinished counts a call and, unless it never reached the wire, observes
// its duration.
func (m *RPC) CallFinished(method, outcome string, d time.Duration) {
	m.calls.WithLabelValues(method, outcome).Inc()
	if outcome != rpc.OutcomeNotConnected {
		m.callDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

func (m *RPC) SetPendingCalls(n int) {
	m.pending.Set(float64(n))
}

func (m *RPC) EventReceived(name string) {
	m.events.WithLabelValues(name).Inc()
}

func (m *RPC) FrameDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// StateChanged sets the connected gauge.
func (m *RPC) StateChanged(state wadash.State) {
	if state == wadash.StateConnected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *RPC) ConnectAttempt(success bool) {
	m.connectAttempts.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// HTTP records dashboard requests.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	limited  *prometheus.CounterVec
}

// NewHTTP creates the dashboard collectors and registers them with reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		limited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by a dashboard rate limiter.",
			},
			[]string{"scope"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.limited)
	}
	return m
}

// RecordRequest records one handled request.
func (m *HTTP) RecordRequest(method, path string, status int, d time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.requests.WithLabelValues(method, path, statusLabel).Inc()
	m.duration.WithLabelValues(method, path, statusLabel).Observe(d.Seconds())
}

// RecordRateLimited counts a request rejected by the limiter for scope.
func (m *HTTP) RecordRateLimited(scope string) {
	m.limited.WithLabelValues(scope).Inc()
}

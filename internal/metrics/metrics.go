// Package metrics exposes Prometheus instrumentation for the console core.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ptz"

// Metrics holds the collectors shared by the connection manager, watchdog,
// status poller and orchestrator.
type Metrics struct {
	deviceCalls     *prometheus.CounterVec
	deviceDuration  *prometheus.HistogramVec
	connectAttempts *prometheus.CounterVec
	connected       prometheus.Gauge
	watchdogStops   *prometheus.CounterVec
	polls           *prometheus.CounterVec
	fieldFailures   *prometheus.CounterVec
	incoming        prometheus.Counter
	webClients      prometheus.Gauge
	previewPackets  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deviceCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "calls_total",
				Help:      "Device calls issued through the device gate",
			},
			[]string{"op", "result"},
		),
		deviceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "call_duration_seconds",
				Help:      "Duration of device calls including time spent waiting for the gate",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "attempts_total",
				Help:      "Connection attempts by result",
			},
			[]string{"result"},
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "up",
			Help:      "1 when a camera session is open",
		}),
		watchdogStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watchdog",
				Name:      "stops_total",
				Help:      "Stops issued by the motion watchdog",
			},
			[]string{"axis", "result"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "status",
				Name:      "polls_total",
				Help:      "Status polls that queried the device",
			},
			[]string{"result"},
		),
		fieldFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "status",
				Name:      "field_failures_total",
				Help:      "Status fields replaced by a sentinel",
			},
			[]string{"field"},
		),
		incoming: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "incoming_messages_total",
			Help:      "Unsolicited device messages drained",
		}),
		webClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		previewPackets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "preview",
				Name:      "packets_total",
				Help:      "RTP packets fanned out to preview viewers",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.deviceCalls, m.deviceDuration, m.connectAttempts, m.connected,
			m.watchdogStops, m.polls, m.fieldFailures, m.incoming,
			m.webClients, m.previewPackets,
		)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// DeviceCall records one gated device call.
func (m *Metrics) DeviceCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.deviceCalls.WithLabelValues(op, result(err)).Inc()
	m.deviceDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ConnectAttempt records one connection attempt.
func (m *Metrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result(err)).Inc()
}

// SetConnected records whether a session is open.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// WatchdogStop records a stop issued by the watchdog.
func (m *Metrics) WatchdogStop(axis string, err error) {
	if m == nil {
		return
	}
	m.watchdogStops.WithLabelValues(axis, result(err)).Inc()
}

// Poll records a status poll that reached the device.
func (m *Metrics) Poll(connected bool) {
	if m == nil {
		return
	}
	r := "connected"
	if !connected {
		r = "disconnected"
	}
	m.polls.WithLabelValues(r).Inc()
}

// FieldFailure records a status field replaced by its sentinel.
func (m *Metrics) FieldFailure(field string) {
	if m == nil {
		return
	}
	m.fieldFailures.WithLabelValues(field).Inc()
}

// Incoming records one drained device message.
func (m *Metrics) Incoming() {
	if m == nil {
		return
	}
	m.incoming.Inc()
}

// AddWebClients adjusts the connected websocket client gauge.
func (m *Metrics) AddWebClients(delta int) {
	if m == nil {
		return
	}
	m.webClients.Add(float64(delta))
}

// PreviewPacket records one RTP packet offered to a viewer.
func (m *Metrics) PreviewPacket(delivered bool) {
	if m == nil {
		return
	}
	r := "delivered"
	if !delivered {
		r = "dropped"
	}
	m.previewPackets.WithLabelValues(r).Inc()
}

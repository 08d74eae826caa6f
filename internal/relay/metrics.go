package relay

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - relay collectors. Nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections    prometheus.Gauge
	Accepted       prometheus.Counter
	Disconnected   *prometheus.CounterVec
	Fragments      prometheus.Counter
	ReceivedBytes  prometheus.Counter
	BroadcastBytes prometheus.Counter
	SendErrors     prometheus.Counter
	Cycles         prometheus.Counter
}

// NewMetrics - builds collectors and registers them with reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of currently connected clients",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_accepted_total",
			Help: "Total number of accepted client connections",
		}),
		Disconnected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_disconnected_total",
				Help: "Total number of torn down client connections",
			},
			[]string{"reason"},
		),
		Fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_fragments_total",
			Help: "Total number of fragments queued for broadcast",
		}),
		ReceivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_received_bytes_total",
			Help: "Total number of bytes read from clients",
		}),
		BroadcastBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_bytes_total",
			Help: "Total number of bytes written to clients",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_errors_total",
			Help: "Total number of failed or short writes to clients",
		}),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_cycles_total",
			Help: "Total number of event loop cycles",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.Connections, m.Accepted, m.Disconnected, m.Fragments,
		m.ReceivedBytes, m.BroadcastBytes, m.SendErrors, m.Cycles,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("relay.NewMetrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) joined() {
	if m == nil {
		return
	}
	m.Accepted.Inc()
	m.Connections.Inc()
}

func (m *Metrics) parted(reason partReason) {
	if m == nil {
		return
	}
	m.Connections.Dec()
	m.Disconnected.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) received(n int) {
	if m == nil {
		return
	}
	m.Fragments.Inc()
	m.ReceivedBytes.Add(float64(n))
}

func (m *Metrics) sent(n int, err error) {
	if m == nil {
		return
	}
	m.BroadcastBytes.Add(float64(n))
	if err != nil {
		m.SendErrors.Inc()
	}
}

func (m *Metrics) cycle() {
	if m == nil {
		return
	}
	m.Cycles.Inc()
}

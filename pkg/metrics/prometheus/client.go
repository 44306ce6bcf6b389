package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/pkg/metrics"
)

func init() {
	metrics.RegisterClientMetricsConstructor(newClientMetrics)
}

// clientMetrics is the Prometheus implementation of client.Metrics.
type clientMetrics struct {
	packetsSent       *prometheus.CounterVec
	packetsReceived   *prometheus.CounterVec
	retransmits       prometheus.Counter
	capabilitiesProbed *prometheus.CounterVec
}

func newClientMetrics() client.Metrics {
	reg := metrics.GetRegistry()

	return &clientMetrics{
		packetsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_client_packets_sent_total",
				Help: "Total number of packets sent to the remote stub, by packet kind",
			},
			[]string{"kind"},
		),
		packetsReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_client_packets_received_total",
				Help: "Total number of packets received from the remote stub, by packet kind",
			},
			[]string{"kind"},
		),
		retransmits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gdbremote_client_retransmits_total",
				Help: "Total number of packet retransmissions triggered by a reply timeout",
			},
		),
		capabilitiesProbed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_client_capabilities_probed_total",
				Help: "Total number of qSupported capability probes, by capability name and resulting state",
			},
			[]string{"name", "state"},
		),
	}
}

func (m *clientMetrics) PacketSent(kind string) {
	m.packetsSent.WithLabelValues(kind).Inc()
}

func (m *clientMetrics) PacketReceived(kind string) {
	m.packetsReceived.WithLabelValues(kind).Inc()
}

func (m *clientMetrics) Retransmit() {
	m.retransmits.Inc()
}

func (m *clientMetrics) CapabilityProbed(name, state string) {
	m.capabilitiesProbed.WithLabelValues(name, state).Inc()
}

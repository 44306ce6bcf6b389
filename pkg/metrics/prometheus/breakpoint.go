package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mark-grimes/gdbremote-core/internal/breakpoint"
	"github.com/mark-grimes/gdbremote-core/pkg/metrics"
)

func init() {
	metrics.RegisterBreakpointMetricsConstructor(newBreakpointMetrics)
}

// breakpointMetrics is the Prometheus implementation of breakpoint.Metrics.
type breakpointMetrics struct {
	sitesInstalled    *prometheus.CounterVec
	sitesRemoved      *prometheus.CounterVec
	installsFailed    *prometheus.CounterVec
}

func newBreakpointMetrics() breakpoint.Metrics {
	reg := metrics.GetRegistry()

	return &breakpointMetrics{
		sitesInstalled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_breakpoint_sites_installed_total",
				Help: "Total number of breakpoint/watchpoint sites installed, by install kind",
			},
			[]string{"kind"}, // "software", "hardware", "software_memory_write"
		),
		sitesRemoved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_breakpoint_sites_removed_total",
				Help: "Total number of breakpoint/watchpoint sites removed, by install kind",
			},
			[]string{"kind"},
		),
		installsFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gdbremote_breakpoint_install_failures_total",
				Help: "Total number of failed breakpoint/watchpoint installs, by failure reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *breakpointMetrics) SiteInstalled(kind string) {
	m.sitesInstalled.WithLabelValues(kind).Inc()
}

func (m *breakpointMetrics) SiteRemoved(kind string) {
	m.sitesRemoved.WithLabelValues(kind).Inc()
}

func (m *breakpointMetrics) SiteInstallFailed(reason string) {
	m.installsFailed.WithLabelValues(reason).Inc()
}

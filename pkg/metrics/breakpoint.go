package metrics

import "github.com/mark-grimes/gdbremote-core/internal/breakpoint"

// NewBreakpointMetrics creates a Prometheus-backed breakpoint.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to breakpoint.NewManager, which
// results in zero overhead.
func NewBreakpointMetrics() breakpoint.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusBreakpointMetrics()
}

// newPrometheusBreakpointMetrics is implemented in
// pkg/metrics/prometheus/breakpoint.go.
var newPrometheusBreakpointMetrics func() breakpoint.Metrics

// RegisterBreakpointMetricsConstructor is called by
// pkg/metrics/prometheus/breakpoint.go during package initialization.
func RegisterBreakpointMetricsConstructor(constructor func() breakpoint.Metrics) {
	newPrometheusBreakpointMetrics = constructor
}

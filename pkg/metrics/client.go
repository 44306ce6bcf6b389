package metrics

import "github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"

// NewClientMetrics creates a Prometheus-backed client.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When
// nil is returned, callers should pass nil to client.New, which results in
// zero overhead.
func NewClientMetrics() client.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusClientMetrics()
}

// newPrometheusClientMetrics is implemented in pkg/metrics/prometheus/client.go.
var newPrometheusClientMetrics func() client.Metrics

// RegisterClientMetricsConstructor is called by
// pkg/metrics/prometheus/client.go during package initialization.
func RegisterClientMetricsConstructor(constructor func() client.Metrics) {
	newPrometheusClientMetrics = constructor
}

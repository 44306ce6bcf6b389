// Package metrics provides nil-safe, interface-shaped instrumentation for
// the remote-process control core, with a Prometheus-backed implementation
// in pkg/metrics/prometheus. Consumers (internal/gdbproto/client,
// internal/breakpoint) depend only on the narrow interfaces they define
// themselves; this package's job is to construct an implementation, or
// return nil when metrics are disabled so every call site becomes a
// zero-cost no-op.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates the process-wide Prometheus registry that every
// New*Metrics constructor in this package registers against. Calling it
// more than once replaces the registry (existing metrics objects keep
// pointing at collectors registered against the old one, so InitRegistry
// is meant to run once at startup, before any New*Metrics call).
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled.Store(true)
	return registry
}

// GetRegistry returns the registry created by InitRegistry, or nil if
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called. Every
// New*Metrics constructor in this package checks this first and returns
// nil when false, so unconfigured processes pay no instrumentation cost.
func IsEnabled() bool {
	return enabled.Load()
}

// Reset tears down the registry. Exposed for tests that need a clean
// collector namespace between cases, since Prometheus collectors panic on
// duplicate registration.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled.Store(false)
}

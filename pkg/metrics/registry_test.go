package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mark-grimes/gdbremote-core/pkg/metrics"
)

func TestDisabledByDefault(t *testing.T) {
	metrics.Reset()
	assert.False(t, metrics.IsEnabled())
	assert.Nil(t, metrics.GetRegistry())
}

func TestInitRegistryEnables(t *testing.T) {
	defer metrics.Reset()

	reg := metrics.InitRegistry()
	assert.NotNil(t, reg)
	assert.True(t, metrics.IsEnabled())
	assert.Same(t, reg, metrics.GetRegistry())
}

func TestNewClientMetricsNilWhenDisabled(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, metrics.NewClientMetrics())
}

func TestNewBreakpointMetricsNilWhenDisabled(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, metrics.NewBreakpointMetrics())
}

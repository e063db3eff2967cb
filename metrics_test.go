package sharedevent

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.observeJoin("x")
	m.observeLeave("x")
	m.observeEvictions("x", 3)
	m.observeEmit("x", 0.5)
	m.observeRegisterFailure("x")
}

func TestNewMetricsRegistersOnceAndTolerantOfReuse(t *testing.T) {
	reg := prometheus.NewRegistry()

	m1, err := NewMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, m1)

	// Registering a second Metrics against the same registry must not
	// fail even though every collector name collides with m1's.
	m2, err := NewMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, m2)

	m1.observeJoin("chan-a")
	m1.observeEmit("chan-a", 0.01)
	m1.observeEvictions("chan-a", 2)
	m1.observeRegisterFailure("chan-a")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

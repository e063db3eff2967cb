package sharedevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHealthHealthyWhilePresentInRoster(t *testing.T) {
	plat := newFakePlatform()
	ch := openTestChannel(t, plat, "health-ok")

	res, err := ch.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusHealthy, res.Status)
	assert.Equal(t, ch.healthCheckName(), res.Name)
}

func TestCheckHealthDegradedAfterEviction(t *testing.T) {
	plat := newFakePlatform()
	publisher := openTestChannel(t, plat, "health-evict")
	victim := openTestChannel(t, plat, "health-evict")

	plat.mu.Lock()
	for _, st := range plat.waits {
		st.mu.Lock()
		st.owned = false
		st.mu.Unlock()
	}
	plat.mu.Unlock()
	victim.stopReader()

	require.NoError(t, publisher.Emit(sampleEvent(7)))

	res, err := victim.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusDegraded, res.Status)
}

func TestCheckHealthUnhealthyAfterClose(t *testing.T) {
	plat := newFakePlatform()
	ch := openTestChannel(t, plat, "health-closed")
	require.NoError(t, ch.Close())

	res, err := ch.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthStatusUnhealthy, res.Status)
}

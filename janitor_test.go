package sharedevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSupervisorEmitsHeartbeatOnSchedule(t *testing.T) {
	plat := newFakePlatform()
	publisher := openTestChannel(t, plat, "heartbeat")
	listener := openTestChannel(t, plat, "heartbeat")

	received := make(chan TransactionEvent, 4)
	listener.RegisterCallback(func(e TransactionEvent) { received <- e })

	beats := int64(0)
	sup, err := NewSupervisor(publisher, func() TransactionEvent {
		beats++
		return sampleEvent(beats)
	}, "@every 10ms", nil)
	require.NoError(t, err)

	sup.Start()
	defer sup.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor never emitted a heartbeat")
	}
}

func TestSupervisorRejectsBadSchedule(t *testing.T) {
	plat := newFakePlatform()
	ch := openTestChannel(t, plat, "heartbeat-bad")

	_, err := NewSupervisor(ch, func() TransactionEvent { return sampleEvent(1) }, "not a schedule", nil)
	require.Error(t, err)
}

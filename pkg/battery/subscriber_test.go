package battery

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-undock/internal/log"
	"github.com/teslashibe/go-undock/pkg/protocol"
)

func TestSubscriber_RetriesWhileBrokerDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	defer client.Close()

	sub := NewSubscriber(client, "battery_state", NewMonitor(), log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Error(t, ctx.Err(), "Run must keep retrying until ctx ends")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after ctx ended")
	}
}

func TestSubscriber_Handle(t *testing.T) {
	m := NewMonitor()
	sub := NewSubscriber(nil, "battery_state", m, log.Discard())

	sub.handle(`{"power_supply_status": 3}`)
	assert.True(t, m.ChargingStopped())

	sub.handle(`not json`)
	assert.True(t, m.ChargingStopped(), "malformed telemetry keeps the last good sample")

	status, ok := m.Status()
	require.True(t, ok)
	assert.Equal(t, protocol.PowerSupplyNotCharging, status)
}

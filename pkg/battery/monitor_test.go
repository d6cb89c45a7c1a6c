package battery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-undock/internal/log"
	"github.com/teslashibe/go-undock/pkg/protocol"
)

func TestMonitor_InitiallyCharging(t *testing.T) {
	m := NewMonitor()
	assert.False(t, m.ChargingStopped())

	_, seen := m.Status()
	assert.False(t, seen)
}

func TestMonitor_LastSampleWins(t *testing.T) {
	m := NewMonitor()

	m.Update(protocol.PowerSupplyNotCharging)
	assert.True(t, m.ChargingStopped())

	m.Update(protocol.PowerSupplyCharging)
	assert.False(t, m.ChargingStopped())

	m.Update(protocol.PowerSupplyFull)
	assert.False(t, m.ChargingStopped(), "full is not 'not charging'")

	m.Update(protocol.PowerSupplyNotCharging)
	assert.True(t, m.ChargingStopped())
}

func TestMonitor_MalformedPayloadKeepsLastGood(t *testing.T) {
	m := NewMonitor()
	require.NoError(t, m.HandlePayload([]byte(`{"power_supply_status":3}`)))
	assert.True(t, m.ChargingStopped())

	assert.Error(t, m.HandlePayload([]byte(`{{{`)))
	assert.Error(t, m.HandlePayload([]byte(`{"voltage":25}`)))
	assert.True(t, m.ChargingStopped())

	samples, rejected, _ := m.Stats()
	assert.Equal(t, uint64(1), samples)
	assert.Equal(t, uint64(2), rejected)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.Update(protocol.PowerSupplyStatus(i % 5))
		}(i)
		go func() {
			defer wg.Done()
			_ = m.ChargingStopped()
		}()
	}
	wg.Wait()

	samples, _, _ := m.Stats()
	assert.Equal(t, uint64(50), samples)
}

func TestSubscriber_HandleIgnoresGarbage(t *testing.T) {
	m := NewMonitor()
	s := NewSubscriber(nil, "battery", m, log.Discard())

	s.handle(`{"power_supply_status":3}`)
	s.handle(`garbage`)
	assert.True(t, m.ChargingStopped())

	s.handle(`{"power_supply_status":1}`)
	assert.False(t, m.ChargingStopped())
}

// Package battery tracks whether the dock has stopped charging the robot.
package battery

import (
	"sync"
	"time"

	"github.com/teslashibe/go-undock/pkg/protocol"
)

// Monitor caches the most recent power supply status. Only the latest
// sample matters; there is no history and no debouncing.
type Monitor struct {
	mu       sync.RWMutex
	status   protocol.PowerSupplyStatus
	seen     bool
	updated  time.Time
	samples  uint64
	rejected uint64
}

// NewMonitor creates a Monitor that has not seen any telemetry yet.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Update records a new status sample.
func (m *Monitor) Update(status protocol.PowerSupplyStatus) {
	m.mu.Lock()
	m.status = status
	m.seen = true
	m.updated = time.Now()
	m.samples++
	m.mu.Unlock()
}

// HandlePayload decodes a telemetry payload and records it. Malformed
// payloads leave the cached value untouched; the error is returned so
// the caller can log it.
func (m *Monitor) HandlePayload(data []byte) error {
	bs, err := protocol.ParseBatteryState(data)
	if err != nil {
		m.mu.Lock()
		m.rejected++
		m.mu.Unlock()
		return err
	}
	m.Update(*bs.PowerSupplyStatus)
	return nil
}

// ChargingStopped reports whether the latest sample says "not charging".
func (m *Monitor) ChargingStopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen && m.status == protocol.PowerSupplyNotCharging
}

// Status returns the latest status and whether any sample has arrived.
func (m *Monitor) Status() (protocol.PowerSupplyStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.seen
}

// Stats returns sample counters and the time of the last good sample.
func (m *Monitor) Stats() (samples, rejected uint64, updated time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.samples, m.rejected, m.updated
}

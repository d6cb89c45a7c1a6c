package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Loop.Rate)
	assert.Equal(t, 20, cfg.Discharge.TimeoutTicks)
	assert.Equal(t, 3, cfg.Discharge.MaxAttempts)
	assert.Equal(t, 5, cfg.Move.Cycles)
	assert.InDelta(t, 0.1, cfg.Move.LinearVelocity, 1e-9)
	assert.Equal(t, DriverRedis, cfg.Move.Driver)
	assert.Equal(t, "/xnergy_charger_rcu/battery_state", cfg.Topics.BatteryState)
	assert.Equal(t, "/kopilot_user_cmd", cfg.Topics.CmdVel)
	assert.Equal(t, 2*time.Second, cfg.Charger.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Move.Timeout)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("UNDOCK_REDIS_ADDR", "redis:6380")
	t.Setenv("UNDOCK_MOVE_CYCLES", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 7, cfg.Move.Cycles)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "undock.yaml")
	data := []byte(`
loop:
  rate: 500ms
move:
  driver: http
  linear_velocity: 0.2
  timeout: 250ms
topics:
  status: dock/status
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Loop.Rate)
	assert.Equal(t, DriverHTTP, cfg.Move.Driver)
	assert.InDelta(t, 0.2, cfg.Move.LinearVelocity, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Move.Timeout)
	assert.Equal(t, "dock/status", cfg.Topics.Status)
	// untouched keys keep their defaults
	assert.Equal(t, 20, cfg.Discharge.TimeoutTicks)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate", func(c *Config) { c.Loop.Rate = 0 }},
		{"zero timeout", func(c *Config) { c.Discharge.TimeoutTicks = 0 }},
		{"zero attempts", func(c *Config) { c.Discharge.MaxAttempts = 0 }},
		{"zero cycles", func(c *Config) { c.Move.Cycles = 0 }},
		{"too fast", func(c *Config) { c.Move.LinearVelocity = 1.0 }},
		{"zero move timeout", func(c *Config) { c.Move.Timeout = 0 }},
		{"bad driver", func(c *Config) { c.Move.Driver = "zenoh" }},
		{"empty topic", func(c *Config) { c.Topics.CmdVel = "" }},
		{"no charger", func(c *Config) { c.Charger.StopURL = "" }},
		{"no redis", func(c *Config) { c.Redis.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

// Package config loads the undock daemon configuration.
// Values come from defaults, an optional YAML file and UNDOCK_* env vars,
// in increasing order of precedence. A loaded Config is never mutated.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. UNDOCK_REDIS_ADDR.
const EnvPrefix = "UNDOCK"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Motion drivers.
const (
	DriverRedis = "redis"
	DriverHTTP  = "http"
)

// Config is the full daemon configuration.
type Config struct {
	Loop      LoopConfig      `mapstructure:"loop"`
	Discharge DischargeConfig `mapstructure:"discharge"`
	Move      MoveConfig      `mapstructure:"move"`
	Topics    TopicsConfig    `mapstructure:"topics"`
	Charger   ChargerConfig   `mapstructure:"charger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
}

// LoopConfig controls the sequencer cadence.
type LoopConfig struct {
	Rate time.Duration `mapstructure:"rate"`
}

// DischargeConfig controls the discharge phase.
type DischargeConfig struct {
	// TimeoutTicks is how many checkpoints to wait for telemetry to report
	// "not charging" before the attempt fails.
	TimeoutTicks int `mapstructure:"timeout_ticks"`
	MaxAttempts  int `mapstructure:"max_attempts"`
}

// MoveConfig controls the timed movement out of the dock.
type MoveConfig struct {
	Cycles            int     `mapstructure:"cycles"`
	LinearVelocity    float64 `mapstructure:"linear_velocity"`
	MaxLinearVelocity float64 `mapstructure:"max_linear_velocity"`
	Driver            string  `mapstructure:"driver"`
	HTTPURL           string  `mapstructure:"http_url"`
	// Timeout bounds one velocity command on the http driver. Keep it
	// below loop.rate so a slow endpoint cannot stall the loop past a tick.
	Timeout time.Duration `mapstructure:"timeout"`
}

// TopicsConfig holds the pub/sub channel names.
type TopicsConfig struct {
	BatteryState string `mapstructure:"battery_state"`
	CmdVel       string `mapstructure:"cmd_vel"`
	Status       string `mapstructure:"status"`
}

// ChargerConfig points at the charger controller.
type ChargerConfig struct {
	StopURL string        `mapstructure:"stop_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the broker connection settings.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// HTTPConfig holds the request interface listener.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig holds the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loop.rate", time.Second)
	v.SetDefault("discharge.timeout_ticks", 20)
	v.SetDefault("discharge.max_attempts", 3)
	v.SetDefault("move.cycles", 5)
	v.SetDefault("move.linear_velocity", 0.1)
	v.SetDefault("move.max_linear_velocity", 0.5)
	v.SetDefault("move.driver", DriverRedis)
	v.SetDefault("move.http_url", "http://localhost:8000/api/cmd_vel")
	v.SetDefault("move.timeout", 500*time.Millisecond)
	v.SetDefault("topics.battery_state", "/xnergy_charger_rcu/battery_state")
	v.SetDefault("topics.cmd_vel", "/kopilot_user_cmd")
	v.SetDefault("topics.status", "undock/status")
	v.SetDefault("charger.stop_url", "http://localhost:8080/xnergy_charger_rcu/trigger_stop")
	v.SetDefault("charger.timeout", 2*time.Second)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_timeout", time.Minute)
	v.SetDefault("http.listen", ":8090")
	v.SetDefault("log.level", "info")
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Loop.Rate <= 0:
		return fmt.Errorf("%w: loop.rate must be positive", ErrInvalid)
	case c.Discharge.TimeoutTicks <= 0:
		return fmt.Errorf("%w: discharge.timeout_ticks must be positive", ErrInvalid)
	case c.Discharge.MaxAttempts <= 0:
		return fmt.Errorf("%w: discharge.max_attempts must be positive", ErrInvalid)
	case c.Move.Cycles <= 0:
		return fmt.Errorf("%w: move.cycles must be positive", ErrInvalid)
	case c.Move.MaxLinearVelocity <= 0:
		return fmt.Errorf("%w: move.max_linear_velocity must be positive", ErrInvalid)
	case c.Move.LinearVelocity > c.Move.MaxLinearVelocity:
		return fmt.Errorf("%w: move.linear_velocity %.2f exceeds max %.2f",
			ErrInvalid, c.Move.LinearVelocity, c.Move.MaxLinearVelocity)
	case c.Move.Timeout <= 0:
		return fmt.Errorf("%w: move.timeout must be positive", ErrInvalid)
	case c.Move.Driver != DriverRedis && c.Move.Driver != DriverHTTP:
		return fmt.Errorf("%w: move.driver must be '%s' or '%s', got '%s'",
			ErrInvalid, DriverRedis, DriverHTTP, c.Move.Driver)
	case c.Topics.BatteryState == "" || c.Topics.CmdVel == "" || c.Topics.Status == "":
		return fmt.Errorf("%w: topics must not be empty", ErrInvalid)
	case c.Charger.StopURL == "":
		return fmt.Errorf("%w: charger.stop_url is required", ErrInvalid)
	case c.Redis.Addr == "":
		return fmt.Errorf("%w: redis.addr is required", ErrInvalid)
	}
	return nil
}

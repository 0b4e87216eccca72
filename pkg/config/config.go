package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TSAMP_POOL_SIZE or TSAMP_SIM_SCENARIO.
const EnvPrefix = "TSAMP"

// Config holds application configuration
type Config struct {
	LogLevel        string        `mapstructure:"log_level" json:"log_level" default:"panic"`
	Backend         string        `mapstructure:"backend" json:"backend" default:"sim"`
	PoolSize        int           `mapstructure:"pool_size" json:"pool_size" default:"2"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" json:"wait_timeout" default:"10s"`
	DrainTimeout    time.Duration `mapstructure:"drain_timeout" json:"drain_timeout"`
	ServiceTimeout  time.Duration `mapstructure:"service_timeout" json:"service_timeout" default:"10s"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" json:"response_timeout" default:"10s"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout" json:"stop_timeout" default:"10s"`
	Sim             SimConfig     `mapstructure:"sim" json:"sim"`
}

// SimConfig configures the simulated backend.
type SimConfig struct {
	// Scenario is a YAML scenario file; it wins over the delays below.
	Scenario      string        `mapstructure:"scenario" json:"scenario"`
	ServiceDelay  time.Duration `mapstructure:"service_delay" json:"service_delay"`
	TransferDelay time.Duration `mapstructure:"transfer_delay" json:"transfer_delay" default:"2ms"`
}

// keys lists every setting so environment variables are seen by Unmarshal.
var keys = []string{
	"log_level", "backend", "pool_size",
	"wait_timeout", "drain_timeout", "service_timeout", "response_timeout", "stop_timeout",
	"sim.scenario", "sim.service_delay", "sim.transfer_delay",
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration from defaults, the optional file at path and TSAMP_*
// environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the commands cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", c.PoolSize)
	}
	for name, d := range map[string]time.Duration{
		"wait_timeout":     c.WaitTimeout,
		"drain_timeout":    c.DrainTimeout,
		"service_timeout":  c.ServiceTimeout,
		"response_timeout": c.ResponseTimeout,
		"stop_timeout":     c.StopTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Level returns the parsed log level, PanicLevel when unparsable.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

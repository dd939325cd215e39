// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge daemon configuration from a YAML file,
// DXBRIDGE_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DXBRIDGE_BUS_PORT
const EnvPrefix = "DXBRIDGE"

// HostConfig describes the link to the host computer. Exactly one of Port
// (serial) or Listen (WebSocket) is used.
type HostConfig struct {
	Port     string `mapstructure:"port"`
	Baud     int    `mapstructure:"baud"`
	Listen   string `mapstructure:"listen"`
	Path     string `mapstructure:"path"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BusConfig describes the half-duplex servo bus
type BusConfig struct {
	Port            string        `mapstructure:"port"`
	Baud            int           `mapstructure:"baud"`
	Direction       string        `mapstructure:"direction"`
	InvertDirection bool          `mapstructure:"invert_direction"`
	Timeout         time.Duration `mapstructure:"timeout"` // 0 derives it from Baud
}

// BridgeConfig tunes the bridge core
type BridgeConfig struct {
	MaxTargets       int           `mapstructure:"max_targets"`
	PositionRegister int           `mapstructure:"position_register"`
	IdleInterval     time.Duration `mapstructure:"idle_interval"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets the log level, encoding and optional file output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// Config is the top-level configuration
type Config struct {
	Host    HostConfig    `mapstructure:"host"`
	Bus     BusConfig     `mapstructure:"bus"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads configuration from path, or from dxbridge.yaml in the working
// directory or /etc/dxbridge when path is empty. A missing default file is
// not an error. Environment variables override the file and flags bound in
// flags override both. The result is validated.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dxbridge")
		v.SetConfigName("dxbridge")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host.port", "")
	v.SetDefault("host.baud", 1000000)
	v.SetDefault("host.listen", "")
	v.SetDefault("host.path", "/bridge")
	v.SetDefault("host.username", "")
	v.SetDefault("host.password", "")

	v.SetDefault("bus.port", "")
	v.SetDefault("bus.baud", 1000000)
	v.SetDefault("bus.direction", "rts")
	v.SetDefault("bus.invert_direction", false)
	v.SetDefault("bus.timeout", "0s")

	v.SetDefault("bridge.max_targets", 10)
	v.SetDefault("bridge.position_register", 0x24)
	v.SetDefault("bridge.idle_interval", "200us")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 20)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9108")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration before any link is opened
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Host.Port == "" && c.Host.Listen == "":
		errs = append(errs, errors.New("host: one of port or listen is required"))
	case c.Host.Port != "" && c.Host.Listen != "":
		errs = append(errs, errors.New("host: port and listen are mutually exclusive"))
	}
	if c.Host.Port != "" && c.Host.Baud <= 0 {
		errs = append(errs, fmt.Errorf("host: invalid baud %d", c.Host.Baud))
	}
	if c.Host.Listen != "" && !strings.HasPrefix(c.Host.Path, "/") {
		errs = append(errs, fmt.Errorf("host: path %q must start with /", c.Host.Path))
	}

	if c.Bus.Port == "" {
		errs = append(errs, errors.New("bus: port is required"))
	}
	if c.Bus.Baud <= 0 {
		errs = append(errs, fmt.Errorf("bus: invalid baud %d", c.Bus.Baud))
	}
	switch strings.ToLower(c.Bus.Direction) {
	case "", "none", "rts", "dtr":
	default:
		errs = append(errs, fmt.Errorf("bus: unknown direction %q (use rts, dtr or none)", c.Bus.Direction))
	}
	if c.Bus.Timeout < 0 {
		errs = append(errs, fmt.Errorf("bus: negative timeout %s", c.Bus.Timeout))
	}

	if c.Bridge.MaxTargets < 1 || c.Bridge.MaxTargets > 10 {
		errs = append(errs, fmt.Errorf("bridge: max_targets %d out of range 1..10", c.Bridge.MaxTargets))
	}
	if c.Bridge.PositionRegister < 0 || c.Bridge.PositionRegister > 0xFF {
		errs = append(errs, fmt.Errorf("bridge: position_register %d out of range", c.Bridge.PositionRegister))
	}

	if c.Metrics.Enable && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics: addr is required when enabled"))
	}

	return errors.Join(errs...)
}

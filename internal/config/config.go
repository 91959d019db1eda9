// Package config provides configuration loading for the open port sensor.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the open port sensor
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Confirm  ConfirmConfig  `mapstructure:"confirm"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Features FeaturesConfig `mapstructure:"features"`
	PublicIP PublicIPConfig `mapstructure:"publicip"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Token         string        `mapstructure:"token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScannerConfig controls the local nmap scan
type ScannerConfig struct {
	Binary  string        `mapstructure:"binary"`
	Sudo    bool          `mapstructure:"sudo"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ConfirmConfig points at the external confirmation service
type ConfirmConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LedgerConfig controls the confirmation quota history
type LedgerConfig struct {
	Key          string        `mapstructure:"key"`
	Capacity     int64         `mapstructure:"capacity"`
	TrimInterval time.Duration `mapstructure:"trim_interval"`
}

// FeaturesConfig holds the feature-flag store and the defaults used when the
// store has no override
type FeaturesConfig struct {
	Key      string          `mapstructure:"key"`
	Defaults map[string]bool `mapstructure:"defaults"`
}

// PublicIPConfig controls where the public address is read and how it is
// refreshed
type PublicIPConfig struct {
	Key             string        `mapstructure:"key"`
	Field           string        `mapstructure:"field"`
	RefreshEnabled  bool          `mapstructure:"refresh_enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	STUNServers     []string      `mapstructure:"stun_servers"`
	STUNTimeout     time.Duration `mapstructure:"stun_timeout"`
}

// PipelineConfig controls the event subscription
type PipelineConfig struct {
	Subject      string `mapstructure:"subject"`
	Queue        string `mapstructure:"queue"`
	AlarmSubject string `mapstructure:"alarm_subject"`
	MaxInFlight  int64  `mapstructure:"max_in_flight"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("nats.token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scanner.binary", "nmap")
	v.SetDefault("scanner.sudo", true)
	v.SetDefault("scanner.timeout", "60s")

	v.SetDefault("confirm.url", "http://localhost:8095")
	v.SetDefault("confirm.token", "")
	v.SetDefault("confirm.timeout", "30s")

	v.SetDefault("ledger.key", "ratelimit")
	v.SetDefault("ledger.capacity", 576)
	v.SetDefault("ledger.trim_interval", "1h")

	v.SetDefault("features.key", "sys:features")
	v.SetDefault("features.defaults", map[string]bool{"alarm_openport": true})

	v.SetDefault("publicip.key", "sys:network:info")
	v.SetDefault("publicip.field", "publicIp")
	v.SetDefault("publicip.refresh_enabled", false)
	v.SetDefault("publicip.refresh_interval", "10m")
	v.SetDefault("publicip.stun_servers", []string{"stun:stun.l.google.com:19302", "stun:stun.cloudflare.com:3478"})
	v.SetDefault("publicip.stun_timeout", "5s")

	v.SetDefault("pipeline.subject", "sensor.flows.outport")
	v.SetDefault("pipeline.queue", "openport-sensors")
	v.SetDefault("pipeline.alarm_subject", "alarms.openport.created")
	v.SetDefault("pipeline.max_in_flight", 0)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/openport")
	}

	// Environment variables override (OPENPORT_SCANNER_TIMEOUT, etc.)
	v.SetEnvPrefix("OPENPORT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the sensor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Ledger.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("ledger.capacity must be positive, got %d", c.Ledger.Capacity))
	}
	if c.Ledger.TrimInterval <= 0 {
		errs = append(errs, errors.New("ledger.trim_interval must be positive"))
	}
	if c.Scanner.Timeout <= 0 {
		errs = append(errs, errors.New("scanner.timeout must be positive"))
	}
	if c.Pipeline.MaxInFlight < 0 {
		errs = append(errs, errors.New("pipeline.max_in_flight must not be negative"))
	}
	if c.Confirm.URL == "" {
		errs = append(errs, errors.New("confirm.url is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

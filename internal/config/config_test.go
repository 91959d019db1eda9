package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, "nmap", cfg.Scanner.Binary)
	assert.True(t, cfg.Scanner.Sudo)
	assert.Equal(t, 60*time.Second, cfg.Scanner.Timeout)

	assert.Equal(t, "ratelimit", cfg.Ledger.Key)
	assert.Equal(t, int64(576), cfg.Ledger.Capacity)
	assert.Equal(t, time.Hour, cfg.Ledger.TrimInterval)

	assert.Equal(t, "sys:features", cfg.Features.Key)
	assert.True(t, cfg.Features.Defaults["alarm_openport"])

	assert.Equal(t, "sys:network:info", cfg.PublicIP.Key)
	assert.Equal(t, "publicIp", cfg.PublicIP.Field)
	assert.False(t, cfg.PublicIP.RefreshEnabled)
	assert.Len(t, cfg.PublicIP.STUNServers, 2)

	assert.Equal(t, "sensor.flows.outport", cfg.Pipeline.Subject)
	assert.Equal(t, "openport-sensors", cfg.Pipeline.Queue)
	assert.Equal(t, "alarms.openport.created", cfg.Pipeline.AlarmSubject)
	assert.Zero(t, cfg.Pipeline.MaxInFlight)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENPORT_SCANNER_TIMEOUT", "5s")
	t.Setenv("OPENPORT_SCANNER_SUDO", "false")
	t.Setenv("OPENPORT_LEDGER_CAPACITY", "24")
	t.Setenv("OPENPORT_CONFIRM_URL", "https://confirm.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scanner.Timeout)
	assert.False(t, cfg.Scanner.Sudo)
	assert.Equal(t, int64(24), cfg.Ledger.Capacity)
	assert.Equal(t, "https://confirm.example.com", cfg.Confirm.URL)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openport.yaml")
	content := `
server:
  port: 9100
pipeline:
  max_in_flight: 4
features:
  defaults:
    alarm_openport: false
publicip:
  refresh_enabled: true
  stun_servers:
    - stun:stun.example.com:3478
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, int64(4), cfg.Pipeline.MaxInFlight)
	assert.False(t, cfg.Features.Defaults["alarm_openport"])
	assert.True(t, cfg.PublicIP.RefreshEnabled)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.PublicIP.STUNServers)
	// Untouched sections keep their defaults.
	assert.Equal(t, int64(576), cfg.Ledger.Capacity)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("OPENPORT_LEDGER_CAPACITY", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.capacity")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8090},
			Scanner:  ScannerConfig{Timeout: time.Minute},
			Confirm:  ConfirmConfig{URL: "http://confirm"},
			Ledger:   LedgerConfig{Capacity: 10, TrimInterval: time.Hour},
			Pipeline: PipelineConfig{MaxInFlight: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero trim interval", func(c *Config) { c.Ledger.TrimInterval = 0 }, "ledger.trim_interval"},
		{"zero scan timeout", func(c *Config) { c.Scanner.Timeout = 0 }, "scanner.timeout"},
		{"negative in flight", func(c *Config) { c.Pipeline.MaxInFlight = -1 }, "pipeline.max_in_flight"},
		{"no confirm url", func(c *Config) { c.Confirm.URL = "" }, "confirm.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

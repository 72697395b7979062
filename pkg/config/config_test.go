package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/vivotherm/internal/protocol"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vivotherm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.HealthInterval)
	assert.Equal(t, "thb1s-v2", cfg.BLE.Profile)
	assert.Equal(t, 60*time.Second, cfg.BLE.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.BLE.ConnectTimeout)
	assert.Equal(t, time.Second, cfg.BLE.ReadTimeout)
	assert.Equal(t, "vivotherm.db", cfg.Store.Path)
	assert.True(t, cfg.Store.WALMode)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "vivotherm", cfg.MQTT.Connection.BaseTopic)
	assert.Equal(t, 1, cfg.MQTT.Connection.QoS)
	assert.Equal(t, "homeassistant", cfg.MQTT.HomeAssistant.DiscoveryPrefix)
	assert.False(t, cfg.Influx.Enabled)
	assert.Equal(t, "vivotherm", cfg.Influx.Bucket)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
ble:
  profile: thb1s-v1
  poll_interval: 2m
store:
  path: /var/lib/vivotherm/entries.db
  wal_mode: false
mqtt:
  enabled: true
  broker: tcp://broker:1883
  base_topic: greenhouse
  homeassistant:
    discovery_prefix: ha
influxdb:
  enabled: true
  url: http://influx:8086
  org: home
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.BLE.PollInterval)
	assert.Equal(t, time.Second, cfg.BLE.ReadTimeout, "keys absent from the file MUST keep defaults")
	assert.False(t, cfg.Store.WALMode, "explicit false MUST override a true default")
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Connection.Broker)
	assert.Equal(t, "vivotherm", cfg.MQTT.Connection.ClientID)

	profile, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, protocol.ProfileV1, profile)

	ha := cfg.HomeAssistant()
	assert.Equal(t, "ha", ha.DiscoveryPrefix)
	assert.Equal(t, "greenhouse", ha.BaseTopic)

	poll := cfg.PollOptions()
	assert.Equal(t, 2*time.Minute, poll.Interval)
	assert.Equal(t, 30*time.Second, poll.ConnectTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VIVOTHERM_MQTT_PASSWORD", "s3cret")
	t.Setenv("VIVOTHERM_INFLUXDB_TOKEN", "token")
	t.Setenv("VIVOTHERM_STORE_PATH", "/tmp/x.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.MQTT.Connection.Password)
	assert.Equal(t, "token", cfg.Influx.Token)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "ble: [unterminated"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "not a valid logrus Level"},
		{"unknown profile", func(c *Config) { c.BLE.Profile = "thb9" }, "unknown protocol profile"},
		{"zero interval", func(c *Config) { c.BLE.PollInterval = 0 }, "ble.poll_interval must be positive"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker is required"},
		{"bad qos", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Connection.Broker = "tcp://b:1883"
			c.MQTT.Connection.QoS = 3
		}, "mqtt.qos must be 0, 1 or 2"},
		{"influx without org", func(c *Config) { c.Influx.Enabled = true }, "influxdb.org"},
		{"no store", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := (&Config{LogLevel: tt.level}).NewLogger()
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

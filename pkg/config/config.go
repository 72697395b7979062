// Package config loads the application configuration: built-in defaults, then the YAML
// file, then environment overrides. Command-line flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/hass"
	"github.com/srg/vivotherm/internal/mqtt"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel string           `yaml:"log_level" json:"log_level" default:"info"`
	BLE      BLEConfig        `yaml:"ble" json:"ble"`
	Store    entry.Config     `yaml:"store" json:"store"`
	MQTT     MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Influx   telemetry.Config `yaml:"influxdb" json:"influxdb"`

	// HealthInterval is how often 'run' logs the health of its outputs and devices; 0 disables it.
	HealthInterval time.Duration `yaml:"health_interval" json:"health_interval" default:"5m"`
}

// BLEConfig tunes polling of the thermo-hygrometers.
type BLEConfig struct {
	Profile        string        `yaml:"profile" json:"profile" default:"thb1s-v2"`
	PollInterval   time.Duration `yaml:"poll_interval" json:"poll_interval" default:"60s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout" default:"1s"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	SetupRetry     time.Duration `yaml:"setup_retry" json:"setup_retry" default:"30s"`
	// Simulate replaces the radio with an in-memory device.
	Simulate bool `yaml:"simulate" json:"simulate"`
}

// MQTTConfig enables the Home Assistant bridge.
type MQTTConfig struct {
	Enabled       bool        `yaml:"enabled" json:"enabled"`
	Connection    mqtt.Config `yaml:",inline" json:"connection"`
	HomeAssistant hass.Config `yaml:"homeassistant" json:"homeassistant"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path over the defaults; keys absent from the file keep their default.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIVOTHERM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("VIVOTHERM_MQTT_BROKER"); v != "" {
		cfg.MQTT.Connection.Broker = v
	}
	if v := os.Getenv("VIVOTHERM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Connection.Username = v
	}
	if v := os.Getenv("VIVOTHERM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Connection.Password = v
	}
	if v := os.Getenv("VIVOTHERM_INFLUXDB_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := protocol.LookupProfile(c.BLE.Profile); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"ble.poll_interval":   c.BLE.PollInterval,
		"ble.connect_timeout": c.BLE.ConnectTimeout,
		"ble.read_timeout":    c.BLE.ReadTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Connection.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.Connection.QoS < 0 || c.MQTT.Connection.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.Connection.QoS))
		}
	}
	if c.Influx.Enabled {
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			errs = append(errs, errors.New("influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled"))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Profile returns the configured frame layout.
func (c *Config) Profile() (protocol.Profile, error) {
	return protocol.LookupProfile(c.BLE.Profile)
}

// PollOptions returns the coordinator options.
func (c *Config) PollOptions() coordinator.Options {
	return coordinator.Options{
		Interval:       c.BLE.PollInterval,
		ConnectTimeout: c.BLE.ConnectTimeout,
		ReadTimeout:    c.BLE.ReadTimeout,
	}
}

// HomeAssistant returns the bridge config with the MQTT base topic filled in.
func (c *Config) HomeAssistant() hass.Config {
	ha := c.MQTT.HomeAssistant
	ha.BaseTopic = c.MQTT.Connection.BaseTopic
	return ha
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

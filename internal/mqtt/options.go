package mqtt

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPublishTimeout = 5 * time.Second

	// milliseconds
	defaultDisconnectQuiesce = 1000

	maxQoS = 2

	// 1MB
	maxPayloadSize = 1 << 20

	// Availability payloads, as expected by Home Assistant.
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config describes the broker connection.
type Config struct {
	Broker         string        `yaml:"broker" json:"broker"`
	ClientID       string        `yaml:"client_id" json:"client_id" default:"vivotherm"`
	Username       string        `yaml:"username" json:"username,omitempty"`
	Password       string        `yaml:"password" json:"-"`
	KeepAlive      time.Duration `yaml:"keep_alive" json:"keep_alive" default:"60s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"10s"`
	MaxReconnect   time.Duration `yaml:"max_reconnect_interval" json:"max_reconnect_interval" default:"2m"`
	BaseTopic      string        `yaml:"base_topic" json:"base_topic" default:"vivotherm"`
	QoS            int           `yaml:"qos" json:"qos" default:"1"`
}

// StatusTopic is the bridge availability topic, "<base>/status".
func (c Config) StatusTopic() string {
	return c.BaseTopic + "/status"
}

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnect)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)

	opts.SetWill(cfg.StatusTopic(), PayloadOffline, byte(cfg.QoS), true)
	return opts
}

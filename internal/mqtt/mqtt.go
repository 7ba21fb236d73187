// Package mqtt bridges a SyncWave session to an MQTT broker: it publishes
// periodic status, accepts path control messages and announces entities for
// Home Assistant discovery.
package mqtt

import (
	"context"
	"time"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/secrets"
)

// MessageHandler receives messages of a subscription.
type MessageHandler func(topic string, payload []byte)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic, payload string) error

	// PublishWithRetain is Publish with an explicit retain flag.
	PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error

	// Subscribe registers handler for topic. Subscriptions survive
	// reconnects.
	Subscribe(topic string, handler MessageHandler) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	WillTopic         string // receives WillPayload when the connection drops
	WillPayload       string
	ReconnectCooldown time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a client config from the mqtt settings section.
// The will marks the bridge offline on its availability topic. Credentials
// are resolved through the secrets package.
func ConfigFromSettings(settings *conf.MQTTSettings) (Config, error) {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	cfg.WillTopic = AvailabilityTopic(settings.Topic)
	cfg.WillPayload = PayloadOffline

	username, err := secrets.ExpandString(settings.Username)
	if err != nil {
		return Config{}, err
	}
	password, err := secrets.Resolve(settings.PasswordFile, settings.Password)
	if err != nil {
		return Config{}, err
	}
	cfg.Username = username
	cfg.Password = password
	return cfg, nil
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}

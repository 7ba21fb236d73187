package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	subMu           sync.Mutex
	subscriptions   map[string]MessageHandler
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client. A nil m records into a private
// registry.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if m == nil {
		var err error
		if m, err = metrics.NewMQTTMetrics(prometheus.NewRegistry()); err != nil {
			return nil, err
		}
	}
	return &client{
		config:        cfg,
		subscriptions: make(map[string]MessageHandler),
		metrics:       m,
		log:           GetLogger(),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since.Truncate(time.Millisecond)).
			Component("mqtt").
			Category(errors.CategoryLimit).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}

	// Resolve up front so DNS failures surface as such instead of a
	// generic connect timeout.
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	if c.config.WillTopic != "" {
		opts.SetWill(c.config.WillTopic, c.config.WillPayload, 1, true)
	}

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.ConnectTimeout):
		return errors.Newf("connection to %s timed out", c.config.Broker).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("broker", c.config.Broker).
			Build()
	}

	c.metrics.SetConnected(true)
	return nil
}

// Publish sends a non-retained message.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, false)
}

// PublishWithRetain sends a message to the specified topic on the MQTT broker.
func (c *client) PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryState).
			Build()
	}

	c.log.Trace("publishing", logger.String("topic", topic), logger.Int("size", len(payload)))

	start := time.Now()
	token := c.internalClient.Publish(topic, 0, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.PublishTimeout):
		c.metrics.RecordError()
		return errors.Newf("publish to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError()
		return err
	}

	c.metrics.RecordPublish(len(payload), time.Since(start))
	return nil
}

// Subscribe registers handler and subscribes right away when connected.
// onConnect renews every registered subscription.
func (c *client) Subscribe(topic string, handler MessageHandler) error {
	c.subMu.Lock()
	c.subscriptions[topic] = handler
	c.subMu.Unlock()

	c.mu.Lock()
	pc := c.internalClient
	c.mu.Unlock()
	if pc == nil || !pc.IsConnected() {
		return nil
	}
	return c.subscribe(pc, topic, handler)
}

func (c *client) subscribe(pc paho.Client, topic string, handler MessageHandler) error {
	token := pc.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.config.PublishTimeout) {
		c.metrics.RecordError()
		return errors.Newf("subscribe to %s timed out", topic).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError()
		return err
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *client) connectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient == nil {
		return
	}
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout / time.Millisecond))
	c.metrics.SetConnected(false)
}

func (c *client) onConnect(pc paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.SetConnected(true)

	c.subMu.Lock()
	subs := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, h := range c.subscriptions {
		subs[topic] = h
	}
	c.subMu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(pc, topic, h); err != nil {
			c.log.Warn("failed to subscribe", logger.String("topic", topic), logger.Error(err))
		}
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.SetConnected(false)
	c.metrics.RecordError()
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.metrics.RecordReconnect()
}

package mqtt

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/session"
)

// Availability payloads, retained on <topic>/availability.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Connection retry bounds of the service.
const (
	InitialRetry = 5 * time.Second
	MaxRetry     = 5 * time.Minute
)

// StatusTopic returns the topic session status is published on.
func StatusTopic(base string) string { return base + "/status" }

// AvailabilityTopic returns the bridge availability topic.
func AvailabilityTopic(base string) string { return base + "/availability" }

// ControlTopic returns the command topic of one path control.
func ControlTopic(base, path, control string) string {
	return base + "/set/" + path + "/" + control
}

// ParseControlTopic splits <base>/set/<path>/<control> into its path and
// control. ok is false for any other topic.
func ParseControlTopic(base, topic string) (path, control string, ok bool) {
	rest, found := strings.CutPrefix(topic, base+"/set/")
	if !found {
		return "", "", false
	}
	path, control, found = strings.Cut(rest, "/")
	if !found || path == "" || control == "" || strings.Contains(control, "/") {
		return "", "", false
	}
	return path, strings.ToLower(control), true
}

// Controller is the session surface the bridge drives.
type Controller interface {
	Status() session.Status
	SetControl(path, control, value string) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Client      Client
	Controller  Controller
	Settings    conf.MQTTSettings
	Version     string
	HTTPMetrics *metrics.HTTPMetrics // control change counters
	Logger      logger.Logger
	Retry       time.Duration
}

// Service publishes session status and applies control messages.
type Service struct {
	opts      ServiceOptions
	log       logger.Logger
	discovery *Publisher
	refresh   chan struct{}
}

// NewService creates a bridge service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Client == nil || opts.Controller == nil {
		return nil, errors.Newf("mqtt service needs a client and a controller").
			Component("mqtt").
			Category(errors.CategoryValidation).
			Build()
	}
	if opts.Settings.StatusInterval <= 0 {
		opts.Settings.StatusInterval = 10 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = InitialRetry
	}
	s := &Service{
		opts:    opts,
		log:     opts.Logger,
		refresh: make(chan struct{}, 1),
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	if opts.Settings.Discovery {
		prefix := opts.Settings.DiscoveryPrefix
		if prefix == "" {
			prefix = "homeassistant"
		}
		s.discovery = NewDiscoveryPublisher(opts.Client, &DiscoveryConfig{
			DiscoveryPrefix: prefix,
			BaseTopic:       opts.Settings.Topic,
			DeviceName:      "SyncWave",
			NodeID:          opts.Settings.ClientID,
			Version:         opts.Version,
		})
	}
	return s, nil
}

// Run connects, publishes until ctx is cancelled, then marks the bridge
// offline and disconnects. Broker outages are retried, not returned.
func (s *Service) Run(ctx context.Context) error {
	if !s.connect(ctx) {
		return nil
	}
	defer s.shutdown()

	base := s.opts.Settings.Topic
	if err := s.opts.Client.PublishWithRetain(ctx, AvailabilityTopic(base), PayloadOnline, true); err != nil {
		s.log.Warn("failed to publish availability", logger.Error(err))
	}
	if s.discovery != nil {
		if err := s.discovery.PublishDiscovery(ctx); err != nil {
			s.log.Warn("discovery incomplete", logger.Error(err))
		}
	}
	if s.opts.Settings.Control {
		if err := s.opts.Client.Subscribe(base+"/set/+/+", s.handleControl); err != nil {
			s.log.Error("failed to subscribe to control topics", logger.Error(err))
		}
	}

	ticker := time.NewTicker(s.opts.Settings.StatusInterval)
	defer ticker.Stop()

	s.publishStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.publishStatus(ctx)
		case <-s.refresh:
			s.publishStatus(ctx)
		}
	}
}

// connect retries with exponential backoff until connected or ctx ends.
func (s *Service) connect(ctx context.Context) bool {
	backoff := s.opts.Retry
	for {
		err := s.opts.Client.Connect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.log.Warn("failed to connect to MQTT broker",
			logger.String("broker", s.opts.Settings.Broker),
			logger.Duration("retry_in", backoff),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, MaxRetry)
	}
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.opts.Client.PublishWithRetain(ctx, AvailabilityTopic(s.opts.Settings.Topic), PayloadOffline, true); err != nil {
		s.log.Debug("failed to publish offline availability", logger.Error(err))
	}
	s.opts.Client.Disconnect()
}

func (s *Service) publishStatus(ctx context.Context) {
	payload, err := StatusPayload(s.opts.Controller.Status())
	if err != nil {
		s.log.Error("failed to encode status", logger.Error(err))
		return
	}
	if err := s.opts.Client.Publish(ctx, StatusTopic(s.opts.Settings.Topic), payload); err != nil {
		s.log.Warn("failed to publish status", logger.Error(err))
	}
}

// handleControl applies a <topic>/set/<path>/<control> message and queues
// a status refresh.
func (s *Service) handleControl(topic string, payload []byte) {
	path, control, ok := ParseControlTopic(s.opts.Settings.Topic, topic)
	if !ok || !slices.Contains(session.Controls, control) {
		s.log.Warn("ignoring control message", logger.String("topic", topic))
		s.recordControl(control, metrics.StatusError)
		return
	}

	value := strings.TrimSpace(string(payload))
	if err := s.opts.Controller.SetControl(path, control, value); err != nil {
		s.log.Warn("control message rejected",
			logger.String("topic", topic),
			logger.String("value", value),
			logger.Error(err))
		s.recordControl(control, metrics.StatusError)
		return
	}
	s.recordControl(control, metrics.StatusSuccess)

	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Service) recordControl(control, status string) {
	if s.opts.HTTPMetrics != nil {
		if control == "" {
			control = "unknown"
		}
		s.opts.HTTPMetrics.RecordControlChange("mqtt", control, status)
	}
}

// StatusPayload encodes the status message.
func StatusPayload(st session.Status) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

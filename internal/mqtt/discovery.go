// discovery.go: Home Assistant MQTT auto-discovery.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/session"
	"github.com/syncwave/syncwave/internal/synccore"
)

// Home Assistant component types used by the bridge.
const (
	ComponentBinarySensor = "binary_sensor"
	ComponentSensor       = "sensor"
	ComponentNumber       = "number"
	ComponentSelect       = "select"
)

const deviceIDPrefix = "syncwave"

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	CommandTopic        string           `json:"command_topic,omitempty"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	Min                 *float64         `json:"min,omitempty"`
	Max                 *float64         `json:"max,omitempty"`
	Step                float64          `json:"step,omitempty"`
	Mode                string           `json:"mode,omitempty"`
	Options             []string         `json:"options,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic of the bridge (e.g., syncwave)
	DeviceName      string
	NodeID          string // typically the MQTT client ID
	Version         string
}

// Entity is one discovery message.
type Entity struct {
	Component string
	ObjectID  string
	Payload   DiscoveryPayload
}

// Publisher handles publishing Home Assistant discovery messages.
type Publisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config *DiscoveryConfig) *Publisher {
	return &Publisher{
		client: client,
		config: *config,
	}
}

// Entities lists the bridge entities: session state, and per output path
// the delay, volume and channel controls plus buffer fill.
func (p *Publisher) Entities() []Entity {
	nodeID := SanitizeID(p.config.NodeID)
	deviceID := fmt.Sprintf("%s_%s", deviceIDPrefix, nodeID)
	statusTopic := StatusTopic(p.config.BaseTopic)
	availability := AvailabilityTopic(p.config.BaseTopic)
	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         p.config.DeviceName,
		Manufacturer: "SyncWave",
		Model:        "Dual Output Bridge",
		SWVersion:    p.config.Version,
	}
	origin := &DiscoveryOrigin{Name: "SyncWave", SWVersion: p.config.Version}

	entities := []Entity{
		{
			Component: ComponentBinarySensor,
			ObjectID:  "running",
			Payload: DiscoveryPayload{
				Name:                "Running",
				UniqueID:            deviceID + "_running",
				StateTopic:          statusTopic,
				ValueTemplate:       "{{ 'ON' if value_json.state == 'running' else 'OFF' }}",
				DeviceClass:         "running",
				PayloadOn:           "ON",
				PayloadOff:          "OFF",
				AvailabilityTopic:   availability,
				PayloadAvailable:    PayloadOnline,
				PayloadNotAvailable: PayloadOffline,
			},
		},
	}

	for i, path := range []synccore.Path{synccore.PathA, synccore.PathB} {
		name := path.String()
		key := strings.ToLower(name)
		field := func(f string) string { return fmt.Sprintf("{{ value_json.paths[%d].%s }}", i, f) }

		entities = append(entities,
			Entity{
				Component: ComponentNumber,
				ObjectID:  key + "_delay",
				Payload: DiscoveryPayload{
					Name:              fmt.Sprintf("Path %s Delay", name),
					UniqueID:          fmt.Sprintf("%s_%s_delay", deviceID, key),
					StateTopic:        statusTopic,
					CommandTopic:      ControlTopic(p.config.BaseTopic, key, session.ControlDelay),
					ValueTemplate:     field("delay_ms"),
					UnitOfMeasurement: "ms",
					Min:               ptr(0),
					Max:               ptr(1000),
					Step:              1,
					Mode:              "box",
					Icon:              "mdi:timer-sand",
					AvailabilityTopic: availability,
				},
			},
			Entity{
				Component: ComponentNumber,
				ObjectID:  key + "_volume",
				Payload: DiscoveryPayload{
					Name:              fmt.Sprintf("Path %s Volume", name),
					UniqueID:          fmt.Sprintf("%s_%s_volume", deviceID, key),
					StateTopic:        statusTopic,
					CommandTopic:      ControlTopic(p.config.BaseTopic, key, session.ControlVolume),
					ValueTemplate:     field("volume"),
					Min:               ptr(0),
					Max:               ptr(2),
					Step:              0.05,
					Mode:              "slider",
					Icon:              "mdi:volume-high",
					AvailabilityTopic: availability,
				},
			},
			Entity{
				Component: ComponentSelect,
				ObjectID:  key + "_channel",
				Payload: DiscoveryPayload{
					Name:              fmt.Sprintf("Path %s Channel", name),
					UniqueID:          fmt.Sprintf("%s_%s_channel", deviceID, key),
					StateTopic:        statusTopic,
					CommandTopic:      ControlTopic(p.config.BaseTopic, key, session.ControlChannel),
					ValueTemplate:     field("channel"),
					Options:           []string{"both", "left", "right"},
					Icon:              "mdi:speaker",
					AvailabilityTopic: availability,
				},
			},
			Entity{
				Component: ComponentSensor,
				ObjectID:  key + "_buffered",
				Payload: DiscoveryPayload{
					Name:              fmt.Sprintf("Path %s Buffered", name),
					UniqueID:          fmt.Sprintf("%s_%s_buffered", deviceID, key),
					StateTopic:        statusTopic,
					ValueTemplate:     field("buffered_ms"),
					UnitOfMeasurement: "ms",
					StateClass:        "measurement",
					EntityCategory:    "diagnostic",
					Icon:              "mdi:buffer",
					AvailabilityTopic: availability,
				},
			},
		)
	}

	for i := range entities {
		entities[i].Payload.Device = device
		entities[i].Payload.Origin = origin
	}
	return entities
}

// PublishDiscovery publishes every entity config, retained. It keeps going
// past failures and returns the first.
func (p *Publisher) PublishDiscovery(ctx context.Context) error {
	log := GetLogger()
	entities := p.Entities()
	log.Info("publishing Home Assistant discovery messages",
		logger.Int("entity_count", len(entities)),
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	var firstErr error
	for i := range entities {
		e := &entities[i]
		data, err := json.Marshal(&e.Payload)
		if err == nil {
			err = p.client.PublishWithRetain(ctx, p.Topic(e), string(data), true)
		}
		if err != nil {
			log.Error("failed to publish discovery message",
				logger.String("object_id", e.ObjectID),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to publish one or more discovery messages: %w", firstErr)
	}
	return nil
}

// RemoveDiscovery publishes empty retained payloads, which makes Home
// Assistant drop the entities.
func (p *Publisher) RemoveDiscovery(ctx context.Context) error {
	entities := p.Entities()
	for i := range entities {
		topic := p.Topic(&entities[i])
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			GetLogger().Warn("failed to remove discovery message",
				logger.String("topic", topic),
				logger.Error(err))
		}
	}
	return nil
}

// Topic returns the discovery config topic of e.
func (p *Publisher) Topic(e *Entity) string {
	nodeID := SanitizeID(p.config.NodeID)
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", p.config.DiscoveryPrefix, e.Component, nodeID, nodeID, e.ObjectID)
}

func ptr(v float64) *float64 { return &v }

// discovery_test.go: Tests for Home Assistant MQTT auto-discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSanitizeID verifies the ID sanitization function for MQTT topics and HA entity IDs.
func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple alphanumeric", "test123", "test123"},
		{"With hyphen", "test-id", "test-id"},
		{"Spaces to underscore", "living room", "living_room"},
		{"Colons to underscore", "hw:0,0", "hw_0_0"},
		{"Double underscore cleanup", "test__id", "test_id"},
		{"Leading special chars", "@@@test", "test"},
		{"All special chars", "@#$%", "unknown"},
		{"Empty string", "", "unknown"},
		{"Bluetooth headset", "WH-1000XM4 (Stereo)", "WH-1000XM4_Stereo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, SanitizeID(tt.input), "SanitizeID(%q) result mismatch", tt.input)
		})
	}
}

func testDiscoveryConfig() *DiscoveryConfig {
	return &DiscoveryConfig{
		DiscoveryPrefix: "homeassistant",
		BaseTopic:       "syncwave",
		DeviceName:      "SyncWave",
		NodeID:          "living room",
		Version:         "1.0.0",
	}
}

func TestEntities(t *testing.T) {
	t.Parallel()

	p := NewDiscoveryPublisher(newFakeClient(), testDiscoveryConfig())
	entities := p.Entities()
	require.Len(t, entities, 9)

	byID := make(map[string]Entity)
	for _, e := range entities {
		byID[e.ObjectID] = e
		assert.Equal(t, []string{"syncwave_living_room"}, e.Payload.Device.Identifiers)
		assert.Equal(t, "syncwave/availability", e.Payload.AvailabilityTopic)
		assert.Equal(t, "syncwave/status", e.Payload.StateTopic)
	}

	delay := byID["a_delay"]
	assert.Equal(t, ComponentNumber, delay.Component)
	assert.Equal(t, "syncwave/set/a/delay", delay.Payload.CommandTopic)
	assert.Equal(t, "{{ value_json.paths[0].delay_ms }}", delay.Payload.ValueTemplate)
	require.NotNil(t, delay.Payload.Max)
	assert.InDelta(t, 1000.0, *delay.Payload.Max, 0)

	channel := byID["b_channel"]
	assert.Equal(t, ComponentSelect, channel.Component)
	assert.Equal(t, "{{ value_json.paths[1].channel }}", channel.Payload.ValueTemplate)
	assert.Equal(t, []string{"both", "left", "right"}, channel.Payload.Options)

	assert.Equal(t, "homeassistant/number/living_room/living_room_a_delay/config", p.Topic(&delay))
}

func TestDiscoveryPayloadJSON(t *testing.T) {
	t.Parallel()

	p := NewDiscoveryPublisher(newFakeClient(), testDiscoveryConfig())
	var delay Entity
	for _, e := range p.Entities() {
		if e.ObjectID == "a_delay" {
			delay = e
		}
	}

	data, err := json.Marshal(&delay.Payload)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "Path A Delay", result["name"])
	assert.Equal(t, "ms", result["unit_of_measurement"])
	assert.InDelta(t, 0.0, result["min"], 0, "zero min must still be emitted")
	assert.NotContains(t, result, "options")
	device, ok := result["device"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SyncWave", device["manufacturer"])
}

func TestPublishAndRemoveDiscovery(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	p := NewDiscoveryPublisher(client, testDiscoveryConfig())
	require.NoError(t, p.PublishDiscovery(context.Background()))

	msgs := client.retainedMessages()
	require.Len(t, msgs, 9)
	for topic, payload := range msgs {
		assert.True(t, strings.HasPrefix(topic, "homeassistant/"), topic)
		assert.NotEmpty(t, payload)
	}

	require.NoError(t, p.RemoveDiscovery(context.Background()))
	for _, payload := range client.retainedMessages() {
		assert.Empty(t, payload)
	}
}

func TestPublishDiscoveryReportsFirstError(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.publishErr = errors.New("broker unavailable")
	p := NewDiscoveryPublisher(client, testDiscoveryConfig())

	err := p.PublishDiscovery(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.publishErr)
}

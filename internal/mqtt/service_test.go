package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/session"
	"github.com/syncwave/syncwave/internal/testutil"
)

type message struct {
	topic   string
	payload string
	retain  bool
}

// fakeClient records publishes and delivers messages to subscriptions.
type fakeClient struct {
	mu           sync.Mutex
	connectFails int
	connects     int
	connected    bool
	disconnected bool
	publishErr   error
	messages     []message
	handlers     map[string]MessageHandler
}

var _ Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]MessageHandler)}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.connectFails {
		return errors.New("connection refused")
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic, payload string) error {
	return f.PublishWithRetain(ctx, topic, payload, false)
}

func (f *fakeClient) PublishWithRetain(_ context.Context, topic, payload string, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, message{topic: topic, payload: payload, retain: retain})
	return nil
}

func (f *fakeClient) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) deliver(pattern, topic, payload string) bool {
	f.mu.Lock()
	h := f.handlers[pattern]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(topic, []byte(payload))
	return true
}

func (f *fakeClient) published(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeClient) retainedMessages() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, m := range f.messages {
		if m.retain {
			out[m.topic] = m.payload
		}
	}
	return out
}

type controlCall struct {
	path, control, value string
}

type fakeController struct {
	mu    sync.Mutex
	calls []controlCall
}

func (f *fakeController) Status() session.Status {
	return session.Status{
		State: session.StateRunning,
		Paths: []session.PathStatus{
			{Path: "A", Active: true, DelayMs: 120, Volume: 1, Channel: "both"},
			{Path: "B", Channel: "both"},
		},
	}
}

func (f *fakeController) SetControl(path, control, value string) error {
	if value == "bad" {
		return errors.New("invalid value")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, controlCall{path, control, value})
	return nil
}

func (f *fakeController) recorded() []controlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlCall(nil), f.calls...)
}

func testMQTTSettings() conf.MQTTSettings {
	return conf.MQTTSettings{
		Enabled:        true,
		Broker:         "tcp://localhost:1883",
		ClientID:       "syncwave",
		Topic:          "syncwave",
		StatusInterval: 20 * time.Millisecond,
	}
}

func startService(t *testing.T, opts ServiceOptions) (cancel func(), done <-chan error) {
	t.Helper()
	svc, err := NewService(opts)
	require.NoError(t, err)
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- svc.Run(ctx) }()
	return cancelFn, ch
}

func TestParseControlTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic   string
		path    string
		control string
		ok      bool
	}{
		{"syncwave/set/a/delay", "a", "delay", true},
		{"syncwave/set/B/Volume", "B", "volume", true},
		{"syncwave/set/a", "", "", false},
		{"syncwave/set/a/delay/extra", "", "", false},
		{"syncwave/set//delay", "", "", false},
		{"other/set/a/delay", "", "", false},
		{"syncwave/status", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			t.Parallel()
			path, control, ok := ParseControlTopic("syncwave", tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.control, control)
		})
	}
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewService(ServiceOptions{Controller: &fakeController{}})
	require.Error(t, err)
	_, err = NewService(ServiceOptions{Client: newFakeClient()})
	require.Error(t, err)
}

func TestServicePublishesStatusAndAvailability(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	cancel, done := startService(t, ServiceOptions{
		Client:     client,
		Controller: &fakeController{},
		Settings:   testMQTTSettings(),
	})

	require.Eventually(t, func() bool {
		return len(client.published("syncwave/status")) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	status := client.published("syncwave/status")[0]
	assert.False(t, status.retain)
	assert.Contains(t, status.payload, `"state":"running"`)
	assert.Contains(t, status.payload, `"delay_ms":120`)

	cancel()
	require.NoError(t, testutil.Returned(t, done))

	avail := client.published("syncwave/availability")
	require.Len(t, avail, 2)
	assert.Equal(t, PayloadOnline, avail[0].payload)
	assert.Equal(t, PayloadOffline, avail[1].payload)
	assert.True(t, avail[1].retain)
	assert.False(t, client.IsConnected())
}

func TestServiceAppliesControlMessages(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	require.NoError(t, err)

	settings := testMQTTSettings()
	settings.Control = true
	settings.StatusInterval = time.Hour
	client := newFakeClient()
	controller := &fakeController{}
	cancel, done := startService(t, ServiceOptions{
		Client:      client,
		Controller:  controller,
		Settings:    settings,
		HTTPMetrics: httpMetrics,
	})
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		return client.deliver("syncwave/set/+/+", "syncwave/set/a/delay", " 250\n")
	}, 2*time.Second, 10*time.Millisecond)
	client.deliver("syncwave/set/+/+", "syncwave/set/a/pitch", "2")
	client.deliver("syncwave/set/+/+", "syncwave/set/b/volume", "bad")

	assert.Equal(t, []controlCall{{"a", "delay", "250"}}, controller.recorded())

	// The accepted change triggers an immediate status publish on top of
	// the initial one.
	require.Eventually(t, func() bool {
		return len(client.published("syncwave/status")) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.InDelta(t, 1.0, controlChanges(t, registry, "delay", metrics.StatusSuccess), 0)
	assert.InDelta(t, 1.0, controlChanges(t, registry, "volume", metrics.StatusError), 0)
	assert.InDelta(t, 1.0, controlChanges(t, registry, "pitch", metrics.StatusError), 0)
}

func TestServiceRetriesConnect(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.connectFails = 2
	cancel, done := startService(t, ServiceOptions{
		Client:     client,
		Controller: &fakeController{},
		Settings:   testMQTTSettings(),
		Retry:      5 * time.Millisecond,
	})

	require.Eventually(t, client.IsConnected, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, testutil.Returned(t, done))
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 3, client.connects)
}

func TestServiceCancelledWhileConnecting(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.connectFails = 1 << 30
	cancel, done := startService(t, ServiceOptions{
		Client:     client,
		Controller: &fakeController{},
		Settings:   testMQTTSettings(),
		Retry:      time.Hour,
	})

	cancel()
	require.NoError(t, testutil.Returned(t, done))
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.False(t, client.disconnected)
	assert.Empty(t, client.messages)
}

func TestServicePublishesDiscovery(t *testing.T) {
	t.Parallel()

	settings := testMQTTSettings()
	settings.Discovery = true
	client := newFakeClient()
	cancel, done := startService(t, ServiceOptions{
		Client:     client,
		Controller: &fakeController{},
		Settings:   settings,
		Version:    "1.0.0",
	})

	require.Eventually(t, func() bool {
		_, ok := client.retainedMessages()["homeassistant/number/syncwave/syncwave_a_delay/config"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, testutil.Returned(t, done))
}

func controlChanges(t *testing.T, registry *prometheus.Registry, control, status string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != metrics.Namespace+"_control_changes_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := make(map[string]string)
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["source"] == "mqtt" && labels["control"] == control && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

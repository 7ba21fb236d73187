package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks the broker connection of the MQTT bridge and the
// messages it publishes. Control messages are counted by HTTPMetrics with
// source "mqtt".
type MQTTMetrics struct {
	Connected      prometheus.Gauge // 1 while connected
	LastConnect    prometheus.Gauge // unix time of the last successful connect
	Reconnects     prometheus.Counter
	Errors         prometheus.Counter // connect, publish and subscribe failures
	Published      prometheus.Counter
	PayloadBytes   prometheus.Histogram
	PublishLatency prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers the MQTT bridge metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "Whether the MQTT bridge is connected to its broker",
		}),
		LastConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "last_connect_timestamp_seconds",
			Help:      "Unix time of the last successful broker connection",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "reconnects_total",
			Help:      "Automatic reconnect attempts after a lost connection",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "errors_total",
			Help:      "Failed connects, publishes and subscriptions",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "published_total",
			Help:      "Status, availability and discovery messages accepted by the broker",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "payload_bytes",
			Help:      "Size of published payloads",
			Buckets:   prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "mqtt",
			Name:      "publish_duration_seconds",
			Help:      "Time until the broker acknowledged a publish",
			Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
	}
	m.collectors = []prometheus.Collector{
		m.Connected, m.LastConnect, m.Reconnects, m.Errors,
		m.Published, m.PayloadBytes, m.PublishLatency,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected is called from the paho connect and connection-lost handlers.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if !connected {
		m.Connected.Set(0)
		return
	}
	m.Connected.Set(1)
	m.LastConnect.SetToCurrentTime()
}

// RecordError counts one failed broker operation.
func (m *MQTTMetrics) RecordError() { m.Errors.Inc() }

// RecordReconnect counts one reconnect attempt.
func (m *MQTTMetrics) RecordReconnect() { m.Reconnects.Inc() }

// RecordPublish records a publish the broker acknowledged.
func (m *MQTTMetrics) RecordPublish(payloadBytes int, took time.Duration) {
	m.Published.Inc()
	m.PayloadBytes.Observe(float64(payloadBytes))
	m.PublishLatency.Observe(took.Seconds())
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

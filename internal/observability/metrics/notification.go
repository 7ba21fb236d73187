package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks shoutrrr deliveries.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // by service and status
	DeliveryDuration *prometheus.HistogramVec // by service
	LastSuccessTime  *prometheus.GaugeVec     // unix time of the last delivery by service

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "notification_deliveries_total",
		Help:      "Notification deliveries by service and status",
	}, []string{"service", "status"})

	m.DeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "notification_delivery_duration_seconds",
		Help:      "Time taken to deliver a notification",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"service"})

	m.LastSuccessTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "notification_last_success_time_seconds",
		Help:      "Timestamp of the last successful delivery",
	}, []string{"service"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.LastSuccessTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.LastSuccessTime.Collect(ch)
}

// RecordDelivery records one delivery attempt to service.
func (m *NotificationMetrics) RecordDelivery(service string, err error, took time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	} else {
		m.LastSuccessTime.WithLabelValues(service).SetToCurrentTime()
	}
	m.DeliveriesTotal.WithLabelValues(service, status).Inc()
	m.DeliveryDuration.WithLabelValues(service).Observe(took.Seconds())
}

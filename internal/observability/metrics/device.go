package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DeviceMetrics records audio device operations. It implements Recorder.
type DeviceMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	registry          *prometheus.Registry
}

// NewDeviceMetrics creates and registers device metrics.
func NewDeviceMetrics(registry *prometheus.Registry) (*DeviceMetrics, error) {
	m := &DeviceMetrics{registry: registry}
	m.OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_operations_total",
		Help:      "Audio device operations by operation and status",
	}, []string{"operation", "status"})

	m.OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "device_operation_duration_seconds",
		Help:      "Time taken by audio device operations",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"operation"})

	m.ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_errors_total",
		Help:      "Audio device errors by operation and category",
	}, []string{"operation", "error_type"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register device metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *DeviceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DeviceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
}

// RecordOperation implements Recorder.
func (m *DeviceMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *DeviceMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DeviceMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Namespace prefixes every SyncWave metric name.
const Namespace = "syncwave"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Device operation names recorded through DeviceMetrics.
const (
	OpDeviceEnumerate = "enumerate"
	OpDeviceInit      = "init"
	OpDeviceStart     = "start"
	OpDeviceStop      = "stop"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart100us is the starting bucket for 0.1ms histograms.
	BucketStart100us = 0.0001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart100B is the starting bucket for 100 byte histograms.
	BucketStart100B = 100.0

	BucketFactor2  = 2
	BucketFactor10 = 10

	BucketCount6  = 6
	BucketCount10 = 10
	BucketCount12 = 12
)

// ShutdownTimeout bounds graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second

// Package metrics provides the Prometheus collectors for SyncWave.
package metrics

// Recorder is the narrow interface components record operations through,
// so tests can substitute a fake.
type Recorder interface {
	// RecordOperation records an operation outcome, status is StatusSuccess or StatusError.
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took, in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records a failed operation with an error category.
	RecordError(operation, errorType string)
}

// Package testutil provides shared test helpers.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// Receive returns the next value from ch or fails the test after timeout.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}

// Returned waits for the result of a Run loop started in a goroutine.
func Returned(t *testing.T, done <-chan error) error {
	t.Helper()
	return Receive(t, done, DefaultTestTimeout, "run loop did not return after cancel")
}

// WaitClosed waits for ch to be closed or signalled.
func WaitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	Receive(t, ch, timeout, msg)
}

// Package session owns the lifecycle of a running synchronization session:
// it opens the audio devices, seeds path controls, restarts after device loss
// or configuration changes and persists delays on shutdown.
package session

import "github.com/syncwave/syncwave/internal/logger"

// GetLogger returns the session module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("session")
}

// Package diagnostics turns engine events into rate-limited log lines,
// metrics and a journal of recent events, and captures host information
// when audio devices fail.
package diagnostics

import "github.com/syncwave/syncwave/internal/logger"

// GetLogger returns the diagnostics module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diagnostics")
}

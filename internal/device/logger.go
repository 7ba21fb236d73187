package device

import "github.com/syncwave/syncwave/internal/logger"

// GetLogger returns the device module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("device")
}

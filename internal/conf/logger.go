// Package conf provides configuration management for SyncWave.
package conf

import "github.com/syncwave/syncwave/internal/logger"

// GetLogger returns the config package logger scoped to the conf module.
// It is fetched from the global logger on every call because the central
// logger is installed after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}

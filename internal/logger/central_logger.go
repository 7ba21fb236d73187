package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Windows hosts may lack the IANA database.
	_ "time/tzdata"
)

// traceLevelValue sits below slog.LevelDebug (-4).
const traceLevelValue = slog.Level(-8)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the logger returned by Global. The runtime context
// calls it once the configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the installed CentralLogger. Before SetGlobal runs, package
// level loggers get an info-level console logger so early messages still
// show up.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		global = &CentralLogger{
			handler:      newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
			defaultLevel: slog.LevelInfo,
		}
	}
	return global
}

// CentralLogger owns the configured sinks and hands out module loggers that
// share them. Module levels are resolved when the module logger is created.
type CentralLogger struct {
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level

	mu   sync.Mutex
	file *BufferedFileWriter
}

// NewCentralLogger builds the console and file sinks described by cfg. Missing
// sections fall back to the defaults in config.go; with every sink disabled
// records still go to stdout.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.New("logging config is nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	var sinks []slog.Handler
	if cfg.Console.Enabled {
		sinks = append(sinks, newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		file, err := openLogFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.file = file
		sinks = append(sinks, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.FileOutput.Level),
		}))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, newTextHandler(os.Stdout, cl.defaultLevel, tz))
	}
	cl.handler = combineSinks(sinks)

	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid log timezone %q: %w", name, err)
	}
	return tz, nil
}

// openLogFile creates the parent directory (owner-only) and opens the
// buffered JSON sink.
func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}
	return NewBufferedFileWriter(path, DefaultFlushInterval)
}

// Module returns a logger tagged with name. A module_levels entry for name
// overrides the default level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &moduleLogger{
		module: name,
		logger: slog.New(cl.handler),
		level:  level,
	}
}

// Close flushes and closes the log file, if one is open.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	file := cl.file
	cl.file = nil
	cl.mu.Unlock()

	if file == nil {
		return nil
	}
	return file.Close()
}

// parseLogLevel maps a config level name to slog. Unknown names mean info.
func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package runtime holds the per-invocation state of the CLI: build
// metadata, the loaded settings and the central logger.
package runtime

import (
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/syncwave/syncwave/internal/buildinfo"
	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/logger"
)

// Context is shared by every subcommand. Settings and Loader are nil until
// Load succeeds.
type Context struct {
	Build    *buildinfo.Context
	Settings *conf.Settings
	Loader   *conf.Loader

	central *logger.CentralLogger
}

// NewContext creates a Context for build.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// BindFunc binds command-line flags to configuration keys.
type BindFunc func(v *viper.Viper) error

// Load reads configFile, or the default search paths when empty, and
// installs the configured logger as the global one. bind runs before the
// file is read so flags take precedence over file values.
func (c *Context) Load(configFile string, bind BindFunc) error {
	var opts []conf.LoaderOption
	if configFile != "" {
		opts = append(opts, conf.WithConfigFile(configFile))
	}
	loader := conf.NewLoader(opts...)
	if bind != nil {
		if err := bind(loader.Viper()); err != nil {
			return err
		}
	}

	settings, err := loader.Load()
	if err != nil {
		return err
	}
	settings.Version = c.Build.Version()
	settings.BuildDate = c.Build.BuildDate()

	if err := c.initLogging(settings, loader.ConfigFileUsed()); err != nil {
		return err
	}
	c.Settings = settings
	c.Loader = loader
	return nil
}

func (c *Context) initLogging(settings *conf.Settings, configFile string) error {
	cfg := settings.Logging
	if cfg.Console != nil {
		console := *cfg.Console
		cfg.Console = &console
	}
	if cfg.FileOutput != nil {
		file := *cfg.FileOutput
		file.Path = conf.ResolvePath(file.Path, configFile)
		cfg.FileOutput = &file
	}
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			cfg.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return err
	}
	logger.SetGlobal(central)
	c.central = central
	return nil
}

// ConfigDir returns the directory of the config file in use, or "" before
// Load.
func (c *Context) ConfigDir() string {
	if c.Loader == nil || c.Loader.ConfigFileUsed() == "" {
		return ""
	}
	return filepath.Dir(c.Loader.ConfigFileUsed())
}

// Logger returns the module logger for name.
func (c *Context) Logger(name string) logger.Logger {
	return logger.Global().Module(name)
}

// Close flushes and closes the log outputs.
func (c *Context) Close() error {
	if c.central == nil {
		return nil
	}
	return c.central.Close()
}

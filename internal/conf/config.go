// conf/config.go
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// AudioSettings selects devices and fixes the stream geometry.
type AudioSettings struct {
	Backend       string // miniaudio backend, "auto" lets the OS decide
	SampleRate    int    // engine sample rate in Hz
	Channels      int    // interleaved channel count
	BufferFrames  int    // ring buffer capacity per path in frames
	PeriodFrames  int    // device period size, 0 for backend default
	Input         string // capture device name or ID, "default" for the system device
	Loopback      bool   // capture what Input plays instead of a microphone (WASAPI only)
	Output        string // path A playback device
	DefaultOutput string // path B playback device, used in dual routing
}

// DriftSettings mirrors synccore.DriftPolicy.
type DriftSettings struct {
	SkipThreshold int // callbacks of surplus tolerated before skipping
	SkipRetain    int // callbacks of surplus kept after a skip
}

// EngineSettings tunes the synchronization engine.
type EngineSettings struct {
	Routing    string // "single" or "dual"
	Drift      DriftSettings
	EventQueue int // buffered diagnostics events
}

// PathSettings holds the live controls of one output path.
type PathSettings struct {
	DelayMs    int     // target delay in milliseconds
	Volume     float64 // linear gain, values >= 1 pass unscaled
	Channel    string  // "both", "left" or "right"
	LowPassHz  int     // low-pass cutoff, below 20 Hz disables
	HighPassHz int     // high-pass cutoff, below 20 Hz disables
}

// PathsSettings groups both output paths.
type PathsSettings struct {
	A PathSettings
	B PathSettings
}

// ProfileSettings configures the per-device delay profile store.
type ProfileSettings struct {
	Enabled bool
	Path    string // sqlite database file
}

// SessionSettings controls session lifecycle behaviour.
type SessionSettings struct {
	PersistDelay bool // write the final delays back to the config file on shutdown
	Profiles     ProfileSettings
}

// DiagnosticsSettings throttles engine event logging.
type DiagnosticsSettings struct {
	RateLimit   float64 // log lines per second per event kind
	Burst       int     // burst allowance per event kind
	JournalSize int     // bytes of recent event history kept in memory, 0 disables
}

// MetricsSettings exposes Prometheus metrics.
type MetricsSettings struct {
	Enabled bool
	Listen  string
}

// APISettings exposes the HTTP control API.
type APISettings struct {
	Enabled bool
	Listen  string
}

// MQTTSettings publishes status and optionally accepts control messages.
type MQTTSettings struct {
	Enabled         bool
	Broker          string
	ClientID        string
	Username        string
	Password        string        // may reference ${VAR}
	PasswordFile    string        // read the password from this file instead
	Topic           string        // base topic, status goes to <topic>/status
	StatusInterval  time.Duration // status publish period
	Control         bool          // subscribe to <topic>/set/#
	Discovery       bool          // publish Home Assistant discovery configs
	DiscoveryPrefix string
}

// NotifySettings sends lifecycle notifications through shoutrrr URLs.
type NotifySettings struct {
	Enabled bool
	URLs    []string
	Timeout time.Duration
}

// SentrySettings enables opt-in error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

// Settings contains all configuration options for SyncWave.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Logging logger.LoggingConfig

	Audio       AudioSettings
	Engine      EngineSettings
	Paths       PathsSettings
	Session     SessionSettings
	Diagnostics DiagnosticsSettings
	Metrics     MetricsSettings
	API         APISettings
	MQTT        MQTTSettings
	Notify      NotifySettings
	Sentry      SentrySettings
}

// Path returns the settings of path "a" or "b".
func (s *Settings) Path(name string) (*PathSettings, bool) {
	switch strings.ToLower(name) {
	case "a":
		return &s.Paths.A, true
	case "b":
		return &s.Paths.B, true
	}
	return nil, false
}

// Loader reads Settings from defaults, a YAML file and the environment. Each
// Loader owns its viper instance so a running session can watch its file
// independently.
type Loader struct {
	mu          sync.Mutex
	v           *viper.Viper
	configFile  string
	searchPaths []string
	current     *Settings
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithConfigFile reads exactly this file, creating it from the embedded
// default when missing.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configFile = path }
}

// WithSearchPaths replaces the OS default search paths.
func WithSearchPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.searchPaths = paths }
}

// NewLoader creates a Loader with defaults applied.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{v: viper.New()}
	for _, opt := range opts {
		opt(l)
	}
	setDefaultConfig(l.v)
	return l
}

// Viper exposes the underlying viper instance, used by cmd to bind flags.
func (l *Loader) Viper() *viper.Viper { return l.v }

// ConfigFileUsed returns the file the settings were read from.
func (l *Loader) ConfigFileUsed() string { return l.v.ConfigFileUsed() }

// Current returns the last successfully loaded settings.
func (l *Loader) Current() *Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Load reads the configuration and validates it.
func (l *Loader) Load() (*Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.current = settings
	return settings, nil
}

func (l *Loader) decode() (*Settings, error) {
	settings := &Settings{}
	if err := l.v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// initViper points viper at the config file and environment and reads it.
func (l *Loader) initViper() error {
	l.v.SetConfigType("yaml")

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		paths := l.searchPaths
		if len(paths) == 0 {
			var err error
			if paths, err = GetDefaultConfigPaths(); err != nil {
				return fmt.Errorf("error getting default config paths: %w", err)
			}
		}
		for _, path := range paths {
			l.v.AddConfigPath(path)
		}
		l.searchPaths = paths
	}

	if err := configureEnvironmentVariables(l.v); err != nil {
		GetLogger().Warn("environment variable configuration issues", logger.Error(err))
	}

	err := l.v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || isMissingFile(l.configFile) {
		return l.createDefaultConfig()
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

func isMissingFile(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// createDefaultConfig writes the embedded config.yaml to the first search
// path, or to the explicit config file, and reads it back.
func (l *Loader) createDefaultConfig() error {
	configPath := l.configFile
	if configPath == "" {
		configPath = filepath.Join(l.searchPaths[0], ConfigFileName)
	}

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config file is not secret by default
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	l.v.SetConfigFile(configPath)
	return l.v.ReadInConfig()
}

// getDefaultConfig reads the embedded default config.yaml.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, ConfigFileName)
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// Watch re-reads the config file whenever it changes and calls onChange with
// the new settings. Invalid edits are reported through err and leave Current
// unchanged.
func (l *Loader) Watch(onChange func(settings *Settings, err error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		settings, err := l.decode()
		if err == nil {
			l.current = settings
		}
		l.mu.Unlock()
		onChange(settings, err)
	})
	l.v.WatchConfig()
}

// SaveYAMLConfig writes settings to configPath. The file is replaced
// atomically; comments and ordering of the previous file are not kept.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename, fall back to copy
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}

package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultSettings decodes the registered defaults without touching disk.
func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	l := NewLoader()
	s := &Settings{}
	require.NoError(t, l.Viper().Unmarshal(s))
	return s
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "nested", ConfigFileName)

	l := NewLoader(WithConfigFile(configPath))
	settings, err := l.Load()
	require.NoError(t, err)

	assert.FileExists(t, configPath)
	assert.Equal(t, configPath, l.ConfigFileUsed())
	assert.Same(t, settings, l.Current())

	assert.Equal(t, SampleRate, settings.Audio.SampleRate)
	assert.Equal(t, NumChannels, settings.Audio.Channels)
	assert.Equal(t, BufferFrames, settings.Audio.BufferFrames)
	assert.Equal(t, "single", settings.Engine.Routing)
	assert.Equal(t, 2, settings.Engine.Drift.SkipThreshold)
	assert.Equal(t, 1, settings.Engine.Drift.SkipRetain)
	assert.InDelta(t, 1.0, settings.Paths.A.Volume, 1e-9)
	assert.Equal(t, "both", settings.Paths.B.Channel)
	assert.Equal(t, 10*time.Second, settings.MQTT.StatusInterval)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
}

func TestLoadSearchPathsWritesToFirst(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()

	l := NewLoader(WithSearchPaths(first, second))
	_, err := l.Load()
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(first, ConfigFileName))
	assert.NoFileExists(t, filepath.Join(second, ConfigFileName))
}

func TestLoadReadsExistingFile(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	yaml := `
engine:
  routing: dual
paths:
  a:
    delayms: 500
    channel: left
  b:
    delayms: 300
    volume: 0.5
    lowpasshz: 8000
mqtt:
  statusinterval: 30s
`
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	settings, err := NewLoader(WithConfigFile(configPath)).Load()
	require.NoError(t, err)

	assert.Equal(t, "dual", settings.Engine.Routing)
	assert.Equal(t, 500, settings.Paths.A.DelayMs)
	assert.Equal(t, "left", settings.Paths.A.Channel)
	assert.Equal(t, 300, settings.Paths.B.DelayMs)
	assert.InDelta(t, 0.5, settings.Paths.B.Volume, 1e-9)
	assert.Equal(t, 8000, settings.Paths.B.LowPassHz)
	assert.Equal(t, 30*time.Second, settings.MQTT.StatusInterval)
	// untouched keys keep their defaults
	assert.Equal(t, SampleRate, settings.Audio.SampleRate)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("paths:\n  a:\n    delayms: 5000\n"), 0o600))

	_, err := NewLoader(WithConfigFile(configPath)).Load()
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestEnvironmentOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	t.Setenv("SYNCWAVE_PATHS_A_DELAYMS", "250")
	t.Setenv("SYNCWAVE_ENGINE_ROUTING", "dual")
	t.Setenv("SYNCWAVE_DIAGNOSTICS_BURST", "9")

	settings, err := NewLoader(WithConfigFile(configPath)).Load()
	require.NoError(t, err)

	assert.Equal(t, 250, settings.Paths.A.DelayMs)
	assert.Equal(t, "dual", settings.Engine.Routing)
	assert.Equal(t, 9, settings.Diagnostics.Burst)
}

func TestSettingsPath(t *testing.T) {
	t.Parallel()

	s := defaultSettings(t)
	a, ok := s.Path("A")
	require.True(t, ok)
	a.DelayMs = 42
	assert.Equal(t, 42, s.Paths.A.DelayMs)

	_, ok = s.Path("c")
	assert.False(t, ok)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	settings := defaultSettings(t)
	settings.Paths.A.DelayMs = 180
	settings.Paths.B.Channel = "right"
	settings.Version = "should-not-be-written"

	require.NoError(t, SaveYAMLConfig(configPath, settings))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should-not-be-written")

	reloaded, err := NewLoader(WithConfigFile(configPath)).Load()
	require.NoError(t, err)
	assert.Equal(t, 180, reloaded.Paths.A.DelayMs)
	assert.Equal(t, "right", reloaded.Paths.B.Channel)
	assert.Equal(t, settings.Logging.DefaultLevel, reloaded.Logging.DefaultLevel)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(configPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), ConfigFileName)
	assert.Equal(t, filepath.Join(filepath.Dir(base), "profiles.db"), ResolvePath("profiles.db", base))

	abs := filepath.Join(t.TempDir(), "x.db")
	assert.Equal(t, abs, ResolvePath(abs, base))
	assert.Equal(t, "x.db", ResolvePath("x.db", ""))
}

package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"backend wasapi", validateEnvBackend, "WASAPI", false},
		{"backend unknown", validateEnvBackend, "oss", true},
		{"routing dual", validateEnvRouting, "dual", false},
		{"routing bad", validateEnvRouting, "both", true},
		{"delay max", validateEnvDelay, "1000", false},
		{"delay over", validateEnvDelay, "1001", true},
		{"delay text", validateEnvDelay, "soon", true},
		{"volume loud", validateEnvVolume, "1.5", false},
		{"volume negative", validateEnvVolume, "-1", true},
		{"url mqtt", validateEnvURL, "tcp://broker:1883", false},
		{"url no scheme", validateEnvURL, "broker", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	t.Setenv("SYNCWAVE_ENGINE_ROUTING", "sideways")
	t.Setenv("SYNCWAVE_PATHS_B_DELAYMS", "2000")

	err := bindEnvVars(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCWAVE_ENGINE_ROUTING")
	assert.Contains(t, err.Error(), "SYNCWAVE_PATHS_B_DELAYMS")
}

func TestBindEnvVarsClean(t *testing.T) {
	t.Setenv("SYNCWAVE_AUDIO_BACKEND", "pulse")

	v := viper.New()
	require.NoError(t, bindEnvVars(v))
	assert.Equal(t, "pulse", v.GetString("audio.backend"))
}

// env.go - Environment variable configuration and validation for SyncWave
package conf

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still reachable through SYNCWAVE_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		// Devices
		{"audio.backend", "SYNCWAVE_AUDIO_BACKEND", validateEnvBackend},
		{"audio.input", "SYNCWAVE_AUDIO_INPUT", nil},
		{"audio.output", "SYNCWAVE_AUDIO_OUTPUT", nil},
		{"audio.defaultoutput", "SYNCWAVE_AUDIO_DEFAULTOUTPUT", nil},
		{"audio.loopback", "SYNCWAVE_AUDIO_LOOPBACK", validateEnvBool},

		// Engine
		{"engine.routing", "SYNCWAVE_ENGINE_ROUTING", validateEnvRouting},

		// Path controls
		{"paths.a.delayms", "SYNCWAVE_PATHS_A_DELAYMS", validateEnvDelay},
		{"paths.b.delayms", "SYNCWAVE_PATHS_B_DELAYMS", validateEnvDelay},
		{"paths.a.volume", "SYNCWAVE_PATHS_A_VOLUME", validateEnvVolume},
		{"paths.b.volume", "SYNCWAVE_PATHS_B_VOLUME", validateEnvVolume},

		// Integrations
		{"mqtt.broker", "SYNCWAVE_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "SYNCWAVE_MQTT_PASSWORD", nil},
		{"mqtt.passwordfile", "SYNCWAVE_MQTT_PASSWORDFILE", nil},
		{"sentry.enabled", "SYNCWAVE_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SYNCWAVE_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains(supportedBackends, strings.ToLower(value)) {
		return fmt.Errorf("backend must be one of %v, got %q", supportedBackends, value)
	}
	return nil
}

func validateEnvRouting(value string) error {
	switch strings.ToLower(value) {
	case "single", "dual":
		return nil
	}
	return fmt.Errorf("routing must be single or dual, got %q", value)
}

func validateEnvDelay(value string) error {
	ms, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid delay: %w", err)
	}
	if ms < 0 || ms > MaxOffsetMs {
		return fmt.Errorf("delay must be between 0 and %d ms, got %d", MaxOffsetMs, ms)
	}
	return nil
}

func validateEnvVolume(value string) error {
	vol, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid volume: %w", err)
	}
	if vol < 0 {
		return fmt.Errorf("volume must not be negative, got %g", vol)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL needs a scheme and host, got %q", value)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}

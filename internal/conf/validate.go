// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/syncwave/syncwave/internal/synccore"
)

var supportedBackends = []string{
	BackendAuto, BackendWASAPI, BackendPulse, BackendALSA,
	BackendCoreAudio, BackendJACK, BackendNull,
}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	collect := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	collect(validateAudioSettings(&settings.Audio))
	collect(validateEngineSettings(&settings.Engine))
	collect(validatePathSettings("a", &settings.Paths.A, settings.Audio.SampleRate))
	collect(validatePathSettings("b", &settings.Paths.B, settings.Audio.SampleRate))
	collect(validateDelayCapacity(settings))
	collect(validateDiagnosticsSettings(&settings.Diagnostics))
	if settings.Metrics.Enabled {
		collect(validateListenAddress("metrics", settings.Metrics.Listen))
	}
	if settings.API.Enabled {
		collect(validateListenAddress("api", settings.API.Listen))
	}
	collect(validateMQTTSettings(&settings.MQTT))
	collect(validateNotifySettings(&settings.Notify))
	collect(validateSentrySettings(&settings.Sentry))

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	if !slices.Contains(supportedBackends, strings.ToLower(settings.Backend)) {
		errs = append(errs, fmt.Sprintf("audio.backend must be one of %v, got %q", supportedBackends, settings.Backend))
	}
	if settings.SampleRate < 8000 || settings.SampleRate > 192000 {
		errs = append(errs, fmt.Sprintf("audio.samplerate must be between 8000 and 192000, got %d", settings.SampleRate))
	}
	if settings.Channels < 1 || settings.Channels > 2 {
		errs = append(errs, fmt.Sprintf("audio.channels must be 1 or 2, got %d", settings.Channels))
	}
	if settings.BufferFrames <= 0 {
		errs = append(errs, fmt.Sprintf("audio.bufferframes must be positive, got %d", settings.BufferFrames))
	}
	if settings.PeriodFrames < 0 {
		errs = append(errs, fmt.Sprintf("audio.periodframes must not be negative, got %d", settings.PeriodFrames))
	}

	if len(errs) > 0 {
		return fmt.Errorf("audio settings errors: %v", errs)
	}
	return nil
}

func validateEngineSettings(settings *EngineSettings) error {
	var errs []string

	if _, err := synccore.ParseRoutingMode(settings.Routing); err != nil {
		errs = append(errs, fmt.Sprintf("engine.routing: %v", err))
	}
	if settings.Drift.SkipThreshold < 1 {
		errs = append(errs, fmt.Sprintf("engine.drift.skipthreshold must be at least 1, got %d", settings.Drift.SkipThreshold))
	}
	if settings.Drift.SkipRetain < 0 || settings.Drift.SkipRetain > settings.Drift.SkipThreshold {
		errs = append(errs, fmt.Sprintf("engine.drift.skipretain must be between 0 and skipthreshold, got %d", settings.Drift.SkipRetain))
	}
	if settings.EventQueue < 1 {
		errs = append(errs, fmt.Sprintf("engine.eventqueue must be positive, got %d", settings.EventQueue))
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine settings errors: %v", errs)
	}
	return nil
}

func validatePathSettings(name string, settings *PathSettings, sampleRate int) error {
	var errs []string
	prefix := "paths." + name

	if settings.DelayMs < 0 || settings.DelayMs > MaxOffsetMs {
		errs = append(errs, fmt.Sprintf("%s.delayms must be between 0 and %d, got %d", prefix, MaxOffsetMs, settings.DelayMs))
	}
	if settings.Volume < 0 || math.IsNaN(settings.Volume) || math.IsInf(settings.Volume, 0) {
		errs = append(errs, fmt.Sprintf("%s.volume must be a finite value >= 0, got %g", prefix, settings.Volume))
	}
	if _, err := synccore.ParseChannelMode(settings.Channel); err != nil {
		errs = append(errs, fmt.Sprintf("%s.channel: %v", prefix, err))
	}

	nyquist := sampleRate / 2
	for _, cutoff := range []struct {
		key string
		hz  int
	}{{"lowpasshz", settings.LowPassHz}, {"highpasshz", settings.HighPassHz}} {
		if cutoff.hz < 0 {
			errs = append(errs, fmt.Sprintf("%s.%s must not be negative, got %d", prefix, cutoff.key, cutoff.hz))
		} else if cutoff.hz > 0 && sampleRate > 0 && cutoff.hz >= nyquist {
			errs = append(errs, fmt.Sprintf("%s.%s must be below %d Hz, got %d", prefix, cutoff.key, nyquist, cutoff.hz))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("path %s settings errors: %v", name, errs)
	}
	return nil
}

// validateDelayCapacity rejects configured delays the ring buffer can never
// hold. Delays that merely exceed what fits alongside in-flight audio are
// reported at runtime as partial application.
func validateDelayCapacity(settings *Settings) error {
	if settings.Audio.SampleRate <= 0 || settings.Audio.BufferFrames <= 0 {
		return nil
	}
	maxMs := settings.Audio.BufferFrames * 1000 / settings.Audio.SampleRate
	for _, p := range []struct {
		name string
		ms   int
	}{{"a", settings.Paths.A.DelayMs}, {"b", settings.Paths.B.DelayMs}} {
		if p.ms > maxMs {
			return fmt.Errorf("paths.%s.delayms %d exceeds buffer capacity of %d ms", p.name, p.ms, maxMs)
		}
	}
	return nil
}

func validateDiagnosticsSettings(settings *DiagnosticsSettings) error {
	var errs []string
	if settings.RateLimit <= 0 {
		errs = append(errs, fmt.Sprintf("diagnostics.ratelimit must be positive, got %g", settings.RateLimit))
	}
	if settings.Burst < 1 {
		errs = append(errs, fmt.Sprintf("diagnostics.burst must be at least 1, got %d", settings.Burst))
	}
	if settings.JournalSize < 0 {
		errs = append(errs, fmt.Sprintf("diagnostics.journalsize must not be negative, got %d", settings.JournalSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("diagnostics settings errors: %v", errs)
	}
	return nil
}

func validateListenAddress(section, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s.listen %q is not a host:port address: %w", section, addr, err)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	var errs []string
	if settings.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	} else if err := validateEnvURL(settings.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt.broker: %v", err))
	}
	if strings.TrimSpace(settings.Topic) == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	if settings.StatusInterval < time.Second {
		errs = append(errs, fmt.Sprintf("mqtt.statusinterval must be at least 1s, got %s", settings.StatusInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("mqtt settings errors: %v", errs)
	}
	return nil
}

func validateNotifySettings(settings *NotifySettings) error {
	if !settings.Enabled {
		return nil
	}
	if len(settings.URLs) == 0 {
		return fmt.Errorf("notify.urls must list at least one service URL when notify is enabled")
	}
	for _, raw := range settings.URLs {
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("notify.urls: invalid URL: %w", err)
		}
	}
	if settings.Timeout <= 0 {
		return fmt.Errorf("notify.timeout must be positive, got %s", settings.Timeout)
	}
	return nil
}

func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

package conf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSettingsDefaults(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateSettings(defaultSettings(t)))
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"unknown backend", func(s *Settings) { s.Audio.Backend = "oss" }, "audio.backend"},
		{"sample rate too low", func(s *Settings) { s.Audio.SampleRate = 4000 }, "audio.samplerate"},
		{"too many channels", func(s *Settings) { s.Audio.Channels = 6 }, "audio.channels"},
		{"zero buffer", func(s *Settings) { s.Audio.BufferFrames = 0 }, "audio.bufferframes"},
		{"bad routing", func(s *Settings) { s.Engine.Routing = "triple" }, "engine.routing"},
		{"retain above threshold", func(s *Settings) { s.Engine.Drift.SkipRetain = 3 }, "skipretain"},
		{"zero skip threshold", func(s *Settings) { s.Engine.Drift.SkipThreshold = 0 }, "skipthreshold"},
		{"delay above max", func(s *Settings) { s.Paths.A.DelayMs = MaxOffsetMs + 1 }, "paths.a.delayms"},
		{"negative delay", func(s *Settings) { s.Paths.B.DelayMs = -1 }, "paths.b.delayms"},
		{"negative volume", func(s *Settings) { s.Paths.A.Volume = -0.1 }, "paths.a.volume"},
		{"nan volume", func(s *Settings) { s.Paths.B.Volume = math.NaN() }, "paths.b.volume"},
		{"bad channel", func(s *Settings) { s.Paths.A.Channel = "center" }, "paths.a.channel"},
		{"cutoff above nyquist", func(s *Settings) { s.Paths.A.LowPassHz = 30000 }, "lowpasshz"},
		{"negative cutoff", func(s *Settings) { s.Paths.B.HighPassHz = -5 }, "highpasshz"},
		{"delay beyond buffer", func(s *Settings) {
			s.Audio.BufferFrames = 4410
			s.Paths.A.DelayMs = 200
		}, "exceeds buffer capacity"},
		{"zero rate limit", func(s *Settings) { s.Diagnostics.RateLimit = 0 }, "diagnostics.ratelimit"},
		{"bad metrics listen", func(s *Settings) {
			s.Metrics.Enabled = true
			s.Metrics.Listen = "9464"
		}, "metrics.listen"},
		{"mqtt without broker", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = ""
		}, "mqtt.broker"},
		{"mqtt short interval", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.StatusInterval = 100 * time.Millisecond
		}, "mqtt.statusinterval"},
		{"notify without urls", func(s *Settings) { s.Notify.Enabled = true }, "notify.urls"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := defaultSettings(t)
			tt.mutate(s)

			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := defaultSettings(t)
	s.Audio.SampleRate = 1
	s.Engine.Routing = "bogus"
	s.Paths.B.Channel = "mono"

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestValidateDisabledIntegrationsIgnored(t *testing.T) {
	t.Parallel()

	s := defaultSettings(t)
	s.MQTT.Broker = ""
	s.Metrics.Listen = "nonsense"
	s.API.Listen = "nonsense"
	assert.NoError(t, ValidateSettings(s))
}

// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/syncwave/syncwave/internal/logger"
)

// setDefaultConfig registers a default for every key so environment
// overrides apply even when the file omits the key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("audio.backend", BackendAuto)
	v.SetDefault("audio.samplerate", SampleRate)
	v.SetDefault("audio.channels", NumChannels)
	v.SetDefault("audio.bufferframes", BufferFrames)
	v.SetDefault("audio.periodframes", 0)
	v.SetDefault("audio.input", DefaultDeviceName)
	v.SetDefault("audio.loopback", true)
	v.SetDefault("audio.output", "")
	v.SetDefault("audio.defaultoutput", DefaultDeviceName)

	v.SetDefault("engine.routing", "single")
	v.SetDefault("engine.drift.skipthreshold", 2)
	v.SetDefault("engine.drift.skipretain", 1)
	v.SetDefault("engine.eventqueue", DefaultEventQueue)

	for _, p := range []string{"a", "b"} {
		v.SetDefault("paths."+p+".delayms", 0)
		v.SetDefault("paths."+p+".volume", 1.0)
		v.SetDefault("paths."+p+".channel", "both")
		v.SetDefault("paths."+p+".lowpasshz", 0)
		v.SetDefault("paths."+p+".highpasshz", 0)
	}

	v.SetDefault("session.persistdelay", false)
	v.SetDefault("session.profiles.enabled", false)
	v.SetDefault("session.profiles.path", "profiles.db")

	v.SetDefault("diagnostics.ratelimit", 1.0)
	v.SetDefault("diagnostics.burst", 5)
	v.SetDefault("diagnostics.journalsize", 64*1024)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", "127.0.0.1:8765")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "syncwave")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.passwordfile", "")
	v.SetDefault("mqtt.topic", "syncwave")
	v.SetDefault("mqtt.statusinterval", 10*time.Second)
	v.SetDefault("mqtt.control", false)
	v.SetDefault("mqtt.discovery", false)
	v.SetDefault("mqtt.discoveryprefix", "homeassistant")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.debug", false)
}

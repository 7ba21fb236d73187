// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
)

var initialized atomic.Bool

// Options configures the Sentry client.
type Options struct {
	DSN       string
	Release   string
	SystemID  string
	Debug     bool
	Transport sentry.Transport // nil uses the SDK's HTTP transport
}

// InitSentry initializes Sentry from settings when the user has opted in
// and routes errors built with internal/errors to it.
func InitSentry(settings *conf.Settings, systemID string) error {
	if !settings.Sentry.Enabled {
		GetLogger().Debug("sentry telemetry is disabled (opt-in required)")
		return nil
	}
	return Init(Options{
		DSN:      settings.Sentry.DSN,
		Release:  "syncwave@" + settings.Version,
		SystemID: systemID,
		Debug:    settings.Sentry.Debug,
	})
}

// Init initializes the Sentry SDK with privacy filtering and installs the
// error reporter.
func Init(opts Options) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		SampleRate:       1.0,
		Debug:            opts.Debug,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          opts.Release,
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	configureScope(opts.SystemID)
	errors.SetPrivacyScrubber(ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	GetLogger().Info("sentry telemetry enabled", logger.String("system_id", opts.SystemID))
	return nil
}

// Enabled reports whether Init succeeded.
func Enabled() bool { return initialized.Load() }

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = ScrubMessage(event.Exception[i].Value)
	}
	return event
}

func configureScope(systemID string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		if systemID != "" {
			scope.SetTag("system_id", systemID)
		}
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":       "SyncWave",
			"go_version": runtime.Version(),
		})
	})
}

// SetSessionTag tags subsequent events with the streaming session ID.
func SetSessionTag(sessionID string) {
	if !Enabled() {
		return
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("session_id", sessionID)
	})
}

// CaptureMessage sends a scrubbed informational message, used for session
// lifecycle milestones such as a device restart.
func CaptureMessage(message string, level sentry.Level, component string) {
	if !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(level)
		sentry.CaptureMessage(ScrubMessage(message))
	})
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if !Enabled() {
		return
	}
	sentry.Flush(timeout)
}

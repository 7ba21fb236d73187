// Package stream implements the `syncwave stream` command.
package stream

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncwave/syncwave/internal/api"
	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/mqtt"
	"github.com/syncwave/syncwave/internal/notify"
	"github.com/syncwave/syncwave/internal/observability"
	"github.com/syncwave/syncwave/internal/profiles"
	runtimectx "github.com/syncwave/syncwave/internal/runtime"
	"github.com/syncwave/syncwave/internal/session"
	"github.com/syncwave/syncwave/internal/telemetry"
)

// Command creates the stream command.
func Command(rt *runtimectx.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Capture audio and play it on the configured outputs",
		Long: `Start a synchronization session and keep it running until interrupted.

Flags override the matching config file values. Changes to the config file
are applied while streaming.

Examples:
  # Delay the headset by 180 ms relative to the captured audio
  syncwave stream --output "WH-1000XM4" --delay 180

  # Speakers undelayed, headset 250 ms behind
  syncwave stream --routing dual --output "WH-1000XM4" --default-output Speakers --delay 250`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), rt)
		},
	}

	setupFlags(cmd)
	return cmd
}

// setupFlags configures flags specific to the stream command.
func setupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Path A playback device (name, ID or substring)")
	flags.String("default-output", "", "Path B playback device, used with --routing dual")
	flags.StringP("input", "i", "", "Capture device, \"default\" for the system device")
	flags.Bool("loopback", false, "Capture what the input device plays (WASAPI only)")
	flags.Int("delay", 0, "Path A delay in milliseconds (0-1000)")
	flags.Int("delay-b", 0, "Path B delay in milliseconds (0-1000)")
	flags.String("routing", "", "Output routing: single or dual")
	flags.String("backend", "", "Audio backend (auto, wasapi, coreaudio, alsa, pulse, jack, null)")

	runtimectx.MarkFlag(flags, "output", "audio.output")
	runtimectx.MarkFlag(flags, "default-output", "audio.defaultoutput")
	runtimectx.MarkFlag(flags, "input", "audio.input")
	runtimectx.MarkFlag(flags, "loopback", "audio.loopback")
	runtimectx.MarkFlag(flags, "delay", "paths.a.delayms")
	runtimectx.MarkFlag(flags, "delay-b", "paths.b.delayms")
	runtimectx.MarkFlag(flags, "routing", "engine.routing")
	runtimectx.MarkFlag(flags, "backend", "audio.backend")
}

// Run wires the optional integrations around a session controller and
// runs it until ctx is cancelled.
func Run(ctx context.Context, rt *runtimectx.Context) error {
	settings := rt.Settings
	log := rt.Logger("main")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	initTelemetry(rt, log)
	defer telemetry.Flush(2 * time.Second)

	// Notifications outlive the session so the final "stopped" message is
	// still delivered.
	notifier, err := notify.NewService(&settings.Notify, notify.Options{Metrics: m.Notification})
	if err != nil {
		return err
	}
	opts := session.Options{
		Settings: settings,
		Source:   rt.Loader,
		Watch:    true,
		Metrics:  m,
	}
	if notifier != nil {
		notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
		notifyDone := make(chan struct{})
		go func() {
			defer close(notifyDone)
			_ = notifier.Run(notifyCtx)
		}()
		defer func() {
			stopNotify()
			<-notifyDone
		}()
		opts.Notifier = notifier
	}

	var store *profiles.Store
	if settings.Session.Profiles.Enabled {
		path := conf.ResolvePath(settings.Session.Profiles.Path, rt.Loader.ConfigFileUsed())
		if store, err = profiles.Open(path, settings.Debug); err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close profile store", logger.Error(err))
			}
		}()
		opts.Profiles = store
	}

	controller, err := session.NewController(opts)
	if err != nil {
		return err
	}

	if settings.Metrics.Enabled {
		controller.AddService(observability.NewEndpoint(settings.Metrics.Listen, m, settings.Debug))
	}
	if settings.API.Enabled {
		apiOpts := []api.ServerOption{api.WithMetrics(m.HTTP), api.WithVersion(settings.Version)}
		if store != nil {
			apiOpts = append(apiOpts, api.WithProfiles(store))
		}
		controller.AddService(api.New(settings.API.Listen, controller, apiOpts...))
	}
	if settings.MQTT.Enabled {
		cfg, err := mqtt.ConfigFromSettings(&settings.MQTT)
		if err != nil {
			return err
		}
		client, err := mqtt.NewClient(cfg, m.MQTT)
		if err != nil {
			return err
		}
		bridge, err := mqtt.NewService(mqtt.ServiceOptions{
			Client:      client,
			Controller:  controller,
			Settings:    settings.MQTT,
			Version:     settings.Version,
			HTTPMetrics: m.HTTP,
		})
		if err != nil {
			return err
		}
		controller.AddService(bridge)
	}

	log.Info("starting SyncWave",
		logger.String("version", settings.Version),
		logger.String("config", rt.Loader.ConfigFileUsed()),
		logger.String("routing", settings.Engine.Routing),
		logger.Bool("metrics", settings.Metrics.Enabled),
		logger.Bool("api", settings.API.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled))

	return controller.Run(ctx)
}

func initTelemetry(rt *runtimectx.Context, log logger.Logger) {
	if !rt.Settings.Sentry.Enabled {
		return
	}
	dir := rt.ConfigDir()
	if dir == "" {
		dir = "."
	}
	systemID, err := telemetry.LoadOrCreateSystemID(dir)
	if err != nil {
		log.Warn("failed to load system ID", logger.Error(err))
	}
	rt.Build.SetSystemID(systemID)
	if err := telemetry.InitSentry(rt.Settings, systemID); err != nil {
		log.Warn("failed to initialize sentry", logger.Error(err))
	}
}

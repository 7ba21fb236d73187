package session

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/diagnostics"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability"
	"github.com/syncwave/syncwave/internal/profiles"
	"github.com/syncwave/syncwave/internal/synccore"
	"github.com/syncwave/syncwave/internal/telemetry"
)

// DefaultRestartDelay is the wait between restart attempts after a device
// failure.
const DefaultRestartDelay = 2 * time.Second

// State is the lifecycle state of a Controller.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Notifier receives lifecycle notifications. Notify must not block.
type Notifier interface {
	Notify(title, message string)
}

// ProfileStore remembers delays per output device.
type ProfileStore interface {
	Lookup(device string) (profiles.Profile, bool, error)
	Save(device string, delayMs int, volume float64) error
}

// SettingsSource is the config file behind the settings. *conf.Loader
// implements it.
type SettingsSource interface {
	ConfigFileUsed() string
	Watch(onChange func(settings *conf.Settings, err error))
}

// Service is run alongside the session and stopped with it.
type Service interface {
	Run(ctx context.Context) error
}

// BackendFactory opens the audio backend named by settings.
type BackendFactory func(settings *conf.Settings) (device.Backend, error)

// Options configures a Controller. Settings is required.
type Options struct {
	Settings *conf.Settings
	// Source enables persistence and, with Watch, hot reload.
	Source SettingsSource
	Watch  bool

	NewBackend   BackendFactory // nil opens miniaudio
	Metrics      *observability.Metrics
	Notifier     Notifier
	Profiles     ProfileStore
	Services     []Service
	Logger       logger.Logger
	RestartDelay time.Duration
}

// lostDevice reports a stream the backend stopped on its own.
type lostDevice struct {
	sessionID string
	role      string
}

// activeSession is one opened engine session and its streams.
type activeSession struct {
	id        string
	sess      *synccore.Session
	capture   device.Stream
	input     string
	playback  [2]device.Stream
	outputs   [2]string
	startedAt time.Time
	stopping  atomic.Bool
}

// Controller runs a synchronization session against an audio backend. All
// methods are safe for concurrent use.
type Controller struct {
	opts     Options
	log      logger.Logger
	sink     *synccore.ChannelSink
	reporter *diagnostics.Reporter

	updates    chan *conf.Settings
	deviceLost chan lostDevice

	mu       sync.Mutex
	settings *conf.Settings // effective settings, including live changes
	base     *conf.Settings // last settings received from the source
	backend  device.Backend
	active   *activeSession
	state    State
	lastErr  error
}

// NewController returns a controller for opts. Nothing is opened until Start
// or Run.
func NewController(opts Options) (*Controller, error) {
	if opts.Settings == nil {
		return nil, errors.Newf("session controller requires settings").
			Component("session").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if opts.Logger == nil {
		opts.Logger = GetLogger()
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.NewBackend == nil {
		opts.NewBackend = malgoBackend(opts)
	}

	c := &Controller{
		opts:       opts,
		log:        opts.Logger,
		sink:       synccore.NewChannelSink(opts.Settings.Engine.EventQueue),
		updates:    make(chan *conf.Settings, 1),
		deviceLost: make(chan lostDevice, 1),
		settings:   cloneSettings(opts.Settings),
		base:       cloneSettings(opts.Settings),
		state:      StateIdle,
	}

	diag := opts.Settings.Diagnostics
	ropts := diagnostics.ReporterOptions{
		Logger:      opts.Logger.Module("events"),
		RateLimit:   diag.RateLimit,
		Burst:       diag.Burst,
		JournalSize: diag.JournalSize,
		Snapshot:    c,
		OnEvent:     c.onEngineEvent,
	}
	if opts.Metrics != nil {
		ropts.Metrics = opts.Metrics.Sync
	}
	c.reporter = diagnostics.NewReporter(c.sink, ropts)
	return c, nil
}

func malgoBackend(opts Options) BackendFactory {
	return func(settings *conf.Settings) (device.Backend, error) {
		dopts := device.Options{Backend: settings.Audio.Backend, Debug: settings.Debug}
		if opts.Metrics != nil {
			dopts.Recorder = opts.Metrics.Device
		}
		return device.NewContext(dopts)
	}
}

// Run starts the session, runs the configured services next to it and
// supervises restarts until ctx is cancelled. On return devices are closed,
// delays are persisted when enabled and profiles are saved.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		c.closeBackend()
		return err
	}

	// The reporter outlives the session so shutdown events are still drained.
	repCtx, stopReporter := context.WithCancel(context.WithoutCancel(ctx))
	repDone := make(chan error, 1)
	go func() { repDone <- c.reporter.Run(repCtx) }()

	if c.opts.Watch && c.opts.Source != nil {
		c.opts.Source.Watch(c.onConfigChange)
		c.log.Info("watching configuration file for changes",
			logger.String("path", c.opts.Source.ConfigFileUsed()))
	}

	c.mu.Lock()
	services := slices.Clone(c.opts.Services)
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error { return svc.Run(gctx) })
	}
	g.Go(func() error { return c.supervise(gctx) })
	runErr := g.Wait()

	c.mu.Lock()
	stopErr := c.stopLocked()
	c.state = StateStopped
	c.mu.Unlock()

	stopReporter()
	<-repDone

	persistErr := c.persist()
	c.closeBackend()
	c.notify("SyncWave stopped", "Session stopped")

	return errors.Join(runErr, stopErr, persistErr)
}

// AddService registers svc to run next to the session. Services added after
// Run has started are ignored.
func (c *Controller) AddService(svc Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Services = append(c.opts.Services, svc)
}

// Start opens the devices and starts streaming. It fails when a session is
// already running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return errors.Newf("session %s is already running", c.active.id).
			Component("session").
			Category(errors.CategoryConflict).
			Build()
	}
	return c.startLocked()
}

// Stop stops streaming and closes the session. It is a no-op when idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.stopLocked()
	c.state = StateIdle
	return err
}

// Close stops any running session and releases the audio backend.
func (c *Controller) Close() error {
	err := c.Stop()
	c.closeBackend()
	return err
}

func (c *Controller) startLocked() (err error) {
	settings := c.settings
	defer func() {
		c.lastErr = err
		if err != nil && c.state != StateRestarting {
			c.state = StateIdle
		}
	}()

	if c.backend == nil {
		backend, err := c.opts.NewBackend(settings)
		if err != nil {
			return err
		}
		c.backend = backend
	}

	cfg, err := sessionConfig(settings)
	if err != nil {
		return err
	}
	sess, err := synccore.NewSession(cfg, c.sink)
	if err != nil {
		return err
	}

	as := &activeSession{id: uuid.NewString(), sess: sess}
	if err := c.openStreams(as, settings); err != nil {
		_ = as.teardown()
		return err
	}
	if err := c.seedControls(as, settings); err != nil {
		_ = as.teardown()
		return err
	}

	// Capture runs first so the initial delay prefill is followed by live
	// audio before the first playback callback.
	if err := as.capture.Start(); err != nil {
		_ = as.teardown()
		return err
	}
	for _, p := range sess.ActivePaths() {
		if err := as.playback[p].Start(); err != nil {
			_ = as.teardown()
			return err
		}
	}

	as.startedAt = time.Now()
	c.active = as
	c.state = StateRunning
	if c.opts.Metrics != nil {
		c.opts.Metrics.Sync.SessionStarted()
	}
	telemetry.SetSessionTag(as.id)

	fields := []logger.Field{
		logger.String("session_id", as.id),
		logger.String("routing", cfg.Routing.String()),
		logger.String("input", as.input),
		logger.Int("sample_rate", int(cfg.SampleRate)),
		logger.Int("channels", cfg.Channels),
	}
	for _, p := range sess.ActivePaths() {
		fields = append(fields, logger.String("output_"+p.String(), as.outputs[p]))
	}
	c.log.Info("session started", fields...)
	c.notify("SyncWave started", fmt.Sprintf("Streaming %s to %s", as.input, describeOutputs(as)))
	return nil
}

func (c *Controller) openStreams(as *activeSession, settings *conf.Settings) error {
	sess := as.sess
	base := device.StreamConfig{
		SampleRate:   uint32(settings.Audio.SampleRate),
		Channels:     settings.Audio.Channels,
		PeriodFrames: uint32(max(settings.Audio.PeriodFrames, 0)),
	}

	capCfg := base
	capCfg.OnStop = c.stopHandler(as, "capture")
	capture, err := c.backend.OpenCapture(settings.Audio.Input, settings.Audio.Loopback, capCfg, sess.Capture)
	if err != nil {
		return err
	}
	as.capture = capture
	as.input = capture.Name()

	for _, p := range sess.ActivePaths() {
		pbCfg := base
		pbCfg.OnStop = c.stopHandler(as, "playback "+p.String())
		stream, err := c.backend.OpenPlayback(outputDevice(settings, p), pbCfg, func(out []float32, frames uint32) {
			sess.Playback(p, out, frames)
		})
		if err != nil {
			return err
		}
		as.playback[p] = stream
		as.outputs[p] = stream.Name()
	}
	return nil
}

// seedControls applies path settings, overridden by stored device profiles,
// and pre-fills the initial delays.
func (c *Controller) seedControls(as *activeSession, settings *conf.Settings) error {
	for _, p := range as.sess.ActivePaths() {
		ps := pathSettings(settings, p)
		c.applyProfile(as.outputs[p], ps)

		if err := as.sess.SetVolume(p, float32(ps.Volume)); err != nil {
			return err
		}
		mode, err := synccore.ParseChannelMode(ps.Channel)
		if err != nil {
			return err
		}
		if err := as.sess.SetChannelMode(p, mode); err != nil {
			return err
		}
		if err := as.sess.SetLowPass(p, int32(ps.LowPassHz)); err != nil {
			return err
		}
		if err := as.sess.SetHighPass(p, int32(ps.HighPassHz)); err != nil {
			return err
		}

		applied, err := as.sess.ApplyInitialDelay(p, uint32(ps.DelayMs))
		switch {
		case errors.Is(err, synccore.ErrDelayPartiallyApplied):
			c.log.Warn("initial delay only partially applied",
				logger.String("path", p.String()),
				logger.Int("requested_ms", ps.DelayMs),
				logger.Int64("applied_frames", int64(applied)))
		case err != nil:
			return err
		}
	}
	return nil
}

func (c *Controller) applyProfile(deviceName string, ps *conf.PathSettings) {
	if c.opts.Profiles == nil || deviceName == "" {
		return
	}
	prof, ok, err := c.opts.Profiles.Lookup(deviceName)
	if err != nil {
		c.log.Warn("failed to look up device profile",
			logger.String("device", deviceName),
			logger.Error(err))
		return
	}
	if !ok {
		return
	}
	if prof.DelayMs < 0 || prof.DelayMs > conf.MaxOffsetMs {
		c.log.Warn("ignoring device profile with out of range delay",
			logger.String("device", deviceName),
			logger.Int("delay_ms", prof.DelayMs))
		return
	}
	c.log.Info("using stored device profile",
		logger.String("device", deviceName),
		logger.Int("delay_ms", prof.DelayMs),
		logger.Float64("volume", prof.Volume),
		logger.Int("sessions", prof.Sessions))
	ps.DelayMs = prof.DelayMs
	ps.Volume = prof.Volume
}

func (c *Controller) stopHandler(as *activeSession, role string) func() {
	return func() {
		if as.stopping.Load() {
			return
		}
		select {
		case c.deviceLost <- lostDevice{sessionID: as.id, role: role}:
		default:
		}
	}
}

func (c *Controller) stopLocked() error {
	as := c.active
	if as == nil {
		return nil
	}
	err := as.teardown()
	c.active = nil

	if c.opts.Metrics != nil {
		c.opts.Metrics.Sync.SessionStopped()
	}
	c.saveProfiles(as)
	c.log.Info("session stopped",
		logger.String("session_id", as.id),
		logger.Duration("uptime", time.Since(as.startedAt)))
	return err
}

// teardown stops playback before capture and closes the engine session.
func (as *activeSession) teardown() error {
	as.stopping.Store(true)
	var errs []error
	for _, s := range as.playback {
		if s == nil {
			continue
		}
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.Close()
	}
	if as.capture != nil {
		if err := as.capture.Stop(); err != nil {
			errs = append(errs, err)
		}
		as.capture.Close()
	}
	as.sess.Close()
	return errors.Join(errs...)
}

func (c *Controller) saveProfiles(as *activeSession) {
	if c.opts.Profiles == nil {
		return
	}
	for _, p := range as.sess.ActivePaths() {
		ps := pathSettings(c.settings, p)
		if err := c.opts.Profiles.Save(as.outputs[p], ps.DelayMs, ps.Volume); err != nil {
			c.log.Warn("failed to save device profile",
				logger.String("device", as.outputs[p]),
				logger.Error(err))
		}
	}
}

// supervise applies configuration updates and restarts the session after
// device loss until ctx is done.
func (c *Controller) supervise(ctx context.Context) error {
	retry := time.NewTimer(c.opts.RestartDelay)
	retry.Stop()
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case settings := <-c.updates:
			if err := c.Apply(settings); err != nil {
				c.log.Error("failed to apply configuration change", logger.Error(err))
			}
			if !c.Running() {
				retry.Reset(c.opts.RestartDelay)
			}

		case lost := <-c.deviceLost:
			if c.handleDeviceLost(lost) {
				retry.Reset(c.opts.RestartDelay)
			}

		case <-retry.C:
			if err := c.restart(); err != nil {
				c.log.Warn("session restart failed, retrying",
					logger.Error(err),
					logger.Duration("retry_in", c.opts.RestartDelay))
				retry.Reset(c.opts.RestartDelay)
			}
		}
	}
}

func (c *Controller) handleDeviceLost(lost lostDevice) bool {
	role := lost.role
	c.mu.Lock()
	as := c.active
	if as == nil || as.id != lost.sessionID {
		c.mu.Unlock()
		return false
	}
	name := as.input
	if role != "capture" {
		for _, p := range as.sess.ActivePaths() {
			if role == "playback "+p.String() {
				name = as.outputs[p]
			}
		}
	}
	c.state = StateRestarting
	stopErr := c.stopLocked()
	c.mu.Unlock()

	err := errors.Newf("audio device %q stopped unexpectedly", name).
		Component("session").
		Category(errors.CategoryAudioSink).
		DeviceContext(role, name).
		Build()
	c.log.Error("audio device lost, restarting session",
		logger.String("device", name),
		logger.String("role", role),
		logger.Error(err))
	if stopErr != nil {
		c.log.Warn("errors while stopping session", logger.Error(stopErr))
	}

	report := diagnostics.CaptureSystemInfo(err.Error(), c.debugDir())
	c.log.Debug("system state at device loss", logger.String("report", report))
	c.notify("Audio device lost", fmt.Sprintf("%s (%s) stopped, restarting", name, role))
	return true
}

func (c *Controller) restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil || c.state == StateStopped {
		return nil
	}
	return c.startLocked()
}

func (c *Controller) onConfigChange(settings *conf.Settings, err error) {
	if err != nil {
		c.log.Warn("ignoring invalid configuration change", logger.Error(err))
		return
	}
	// Keep only the newest pending update.
	for {
		select {
		case c.updates <- settings:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

func (c *Controller) onEngineEvent(e synccore.Event) {
	if e.Kind != synccore.EventDelayPartial {
		return
	}
	c.notify("Delay partially applied",
		fmt.Sprintf("Path %s buffered %d of %d requested frames", e.Path, e.Frames, e.Requested))
}

// persist writes the effective delays back to the config file when enabled.
func (c *Controller) persist() error {
	c.mu.Lock()
	settings := cloneSettings(c.settings)
	c.mu.Unlock()

	if !settings.Session.PersistDelay || c.opts.Source == nil {
		return nil
	}
	path := c.opts.Source.ConfigFileUsed()
	if path == "" {
		return nil
	}

	// Only delays are written back; other live changes stay session scoped.
	out := cloneSettings(c.baseSettings())
	out.Paths.A.DelayMs = settings.Paths.A.DelayMs
	out.Paths.B.DelayMs = settings.Paths.B.DelayMs
	if err := conf.SaveYAMLConfig(path, out); err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	c.log.Info("persisted path delays",
		logger.String("path", path),
		logger.Int("delay_a_ms", out.Paths.A.DelayMs),
		logger.Int("delay_b_ms", out.Paths.B.DelayMs))
	return nil
}

func (c *Controller) baseSettings() *conf.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

func (c *Controller) debugDir() string {
	if c.opts.Source == nil {
		return ""
	}
	path := c.opts.Source.ConfigFileUsed()
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func (c *Controller) closeBackend() {
	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	c.mu.Unlock()
	if backend == nil {
		return
	}
	if err := backend.Close(); err != nil {
		c.log.Warn("failed to close audio backend", logger.Error(err))
	}
}

func (c *Controller) notify(title, message string) {
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(title, message)
	}
}

// Running reports whether a session is streaming.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Snapshot returns the engine snapshot of the running session, or an empty
// snapshot when idle.
func (c *Controller) Snapshot() synccore.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return synccore.Snapshot{Closed: true}
	}
	return c.active.sess.Snapshot()
}

// Settings returns a copy of the effective settings.
func (c *Controller) Settings() *conf.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneSettings(c.settings)
}

// Backend returns the audio backend, or nil before the first start.
func (c *Controller) Backend() device.Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend
}

func sessionConfig(settings *conf.Settings) (synccore.SessionConfig, error) {
	routing, err := synccore.ParseRoutingMode(settings.Engine.Routing)
	if err != nil {
		return synccore.SessionConfig{}, err
	}
	cfg := synccore.DefaultSessionConfig()
	cfg.SampleRate = uint32(settings.Audio.SampleRate)
	cfg.Channels = settings.Audio.Channels
	cfg.BufferFrames = settings.Audio.BufferFrames
	cfg.Routing = routing
	cfg.Drift = synccore.DriftPolicy{
		SkipThreshold: uint32(settings.Engine.Drift.SkipThreshold),
		SkipRetain:    uint32(settings.Engine.Drift.SkipRetain),
	}
	return cfg, nil
}

// outputDevice maps path A to the secondary output and path B to the
// default output.
func outputDevice(settings *conf.Settings, p synccore.Path) string {
	if p == synccore.PathB {
		return settings.Audio.DefaultOutput
	}
	return settings.Audio.Output
}

func pathSettings(settings *conf.Settings, p synccore.Path) *conf.PathSettings {
	if p == synccore.PathB {
		return &settings.Paths.B
	}
	return &settings.Paths.A
}

func describeOutputs(as *activeSession) string {
	out := ""
	for _, p := range as.sess.ActivePaths() {
		if out != "" {
			out += " and "
		}
		out += as.outputs[p]
	}
	return out
}

func cloneSettings(s *conf.Settings) *conf.Settings {
	cp := *s
	cp.Notify.URLs = append([]string(nil), s.Notify.URLs...)
	return &cp
}

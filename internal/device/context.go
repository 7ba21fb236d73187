package device

import (
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
)

// deviceListTTL bounds how long an enumeration result is reused.
const deviceListTTL = 5 * time.Second

// StreamConfig fixes the format of an opened stream. Samples are always
// interleaved float32.
type StreamConfig struct {
	SampleRate   uint32
	Channels     int
	PeriodFrames uint32 // 0 lets the backend choose
	// OnStop is called when the backend stops the stream on its own, for
	// example when the device is unplugged. It runs on a backend thread.
	OnStop func()
}

// CaptureFunc receives frames interleaved samples from a capture stream.
type CaptureFunc func(in []float32, frames uint32)

// PlaybackFunc fills frames interleaved samples for a playback stream.
type PlaybackFunc func(out []float32, frames uint32)

// Stream is an opened audio stream.
type Stream interface {
	Name() string
	Start() error
	Stop() error
	Close()
}

// Backend enumerates devices and opens streams.
type Backend interface {
	Devices(kind Kind) ([]Info, error)
	OpenCapture(name string, loopback bool, cfg StreamConfig, onData CaptureFunc) (Stream, error)
	OpenPlayback(name string, cfg StreamConfig, onData PlaybackFunc) (Stream, error)
	Close() error
}

// Options configures a malgo Context.
type Options struct {
	Backend  string // conf backend name
	Recorder metrics.Recorder
	Debug    bool // forward miniaudio log messages at debug level
}

// Context is a Backend over one miniaudio context.
type Context struct {
	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	backends []malgo.Backend
	cache    *cache.Cache
	recorder metrics.Recorder
	log      logger.Logger
	closed   bool
}

// NewContext initializes a miniaudio context for the configured backend.
func NewContext(opts Options) (*Context, error) {
	backends, err := platformBackends(opts.Backend)
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	var logProc malgo.LogProc
	if opts.Debug {
		logProc = func(message string) {
			log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
		}
	}

	start := time.Now()
	allocated, err := malgo.InitContext(backends, malgo.ContextConfig{}, logProc)
	c := &Context{
		backends: backends,
		// no janitor, expired entries are dropped on read
		cache:    cache.New(deviceListTTL, 0),
		recorder: opts.Recorder,
		log:      log,
	}
	c.record(metrics.OpDeviceInit, start, err)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudio).
			Context("operation", "init_context").
			Context("backend", opts.Backend).
			Build()
	}
	c.ctx = allocated
	return c, nil
}

// Loopback reports whether OpenCapture can capture a playback device.
func (c *Context) Loopback() bool { return supportsLoopback(c.backends) }

// Devices lists the devices of kind. Results are cached briefly.
func (c *Context) Devices(kind Kind) ([]Info, error) {
	key := kind.String()
	if cached, ok := c.cache.Get(key); ok {
		if infos, ok := cached.([]Info); ok {
			return infos, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errContextClosed()
	}

	start := time.Now()
	raw, err := c.ctx.Devices(kind.malgoType())
	c.record(metrics.OpDeviceEnumerate, start, err)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudio).
			Context("operation", "enumerate_devices").
			Context("kind", kind.String()).
			Build()
	}

	infos := make([]Info, 0, len(raw))
	for i := range raw {
		// miniaudio's null backend device
		if strings.Contains(raw[i].Name(), "Discard all samples") {
			continue
		}
		infos = append(infos, infoFromMalgo(i, kind, &raw[i]))
	}
	c.cache.SetDefault(key, infos)
	return infos, nil
}

// Resolve finds the device of kind matching name. See SelectDevice.
func (c *Context) Resolve(kind Kind, name string) (Info, error) {
	infos, err := c.Devices(kind)
	if err != nil {
		return Info{}, err
	}
	return SelectDevice(infos, name)
}

// OpenCapture opens the capture stream. With loopback on a backend that
// supports it, name selects the playback device whose output is captured.
func (c *Context) OpenCapture(name string, loopback bool, cfg StreamConfig, onData CaptureFunc) (Stream, error) {
	kind := KindCapture
	deviceType := malgo.Capture
	if loopback {
		if c.Loopback() {
			kind = KindPlayback
			deviceType = malgo.Loopback
		} else {
			c.log.Info("backend has no loopback mode, opening a regular capture device",
				logger.String("device", name))
		}
	}

	info, err := c.Resolve(kind, name)
	if err != nil {
		return nil, err
	}

	dc := c.deviceConfig(deviceType, cfg)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = uint32(cfg.Channels)
	dc.Capture.DeviceID = info.id.Pointer()

	channels := cfg.Channels
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			in := bytesToFloat32(input)
			if n := int(frames) * channels; n < len(in) {
				in = in[:n]
			}
			onData(in, frames)
		},
		Stop: cfg.OnStop,
	}
	return c.open(info, dc, callbacks)
}

// OpenPlayback opens a playback stream on the device matching name.
func (c *Context) OpenPlayback(name string, cfg StreamConfig, onData PlaybackFunc) (Stream, error) {
	info, err := c.Resolve(KindPlayback, name)
	if err != nil {
		return nil, err
	}

	dc := c.deviceConfig(malgo.Playback, cfg)
	dc.Playback.Format = malgo.FormatF32
	dc.Playback.Channels = uint32(cfg.Channels)
	dc.Playback.DeviceID = info.id.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			onData(bytesToFloat32(output), frames)
		},
		Stop: cfg.OnStop,
	}
	return c.open(info, dc, callbacks)
}

func (c *Context) deviceConfig(deviceType malgo.DeviceType, cfg StreamConfig) malgo.DeviceConfig {
	dc := malgo.DefaultDeviceConfig(deviceType)
	dc.SampleRate = cfg.SampleRate
	dc.PeriodSizeInFrames = cfg.PeriodFrames
	dc.Alsa.NoMMap = 1
	return dc
}

func (c *Context) open(info Info, dc malgo.DeviceConfig, callbacks malgo.DeviceCallbacks) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errContextClosed()
	}

	start := time.Now()
	dev, err := malgo.InitDevice(c.ctx.Context, dc, callbacks)
	c.record(metrics.OpDeviceInit, start, err)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(categoryFor(info.Kind)).
			DeviceContext(info.Kind.String(), info.Name).
			Context("operation", "init_device").
			Context("sample_rate", dc.SampleRate).
			Build()
	}

	c.log.Info("audio device opened",
		logger.String("device", info.Name),
		logger.String("kind", info.Kind.String()),
		logger.Int("sample_rate", int(dev.SampleRate())))

	return &malgoStream{info: info, dev: dev, ctx: c}, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cache.Flush()
	err := c.ctx.Uninit()
	c.ctx.Free()
	return err
}

func (c *Context) record(operation string, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		c.recorder.RecordOperation(operation, metrics.StatusError)
		c.recorder.RecordError(operation, string(errors.CategoryAudio))
		return
	}
	c.recorder.RecordOperation(operation, metrics.StatusSuccess)
}

func categoryFor(kind Kind) errors.ErrorCategory {
	if kind == KindPlayback {
		return errors.CategoryAudioSink
	}
	return errors.CategoryAudioSource
}

func errContextClosed() error {
	return errors.Newf("audio context is closed").
		Component("device").
		Category(errors.CategoryState).
		Build()
}

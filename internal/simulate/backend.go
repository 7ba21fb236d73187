package simulate

import (
	"sync"
	"time"

	"github.com/go-audio/audio"

	"github.com/syncwave/syncwave/internal/device"
	"github.com/syncwave/syncwave/internal/errors"
)

// Default device names the backend exposes.
const (
	DefaultCaptureName  = "Simulated Loopback"
	DefaultPlaybackName = "Simulated Speakers"
	HeadsetName         = "Simulated Headset"
)

// Options configures a simulated backend.
type Options struct {
	SampleRate   int
	Channels     int
	PeriodFrames int
	Signal       Signal
	// Realtime paces callbacks with a ticker once a stream starts. When
	// false the caller drives the backend with Step.
	Realtime bool
	// Playback names the playback devices; the first is the default.
	Playback []string
}

// Backend implements device.Backend in software. Each Step runs one
// capture callback followed by one callback per started playback stream,
// recording playback output per device.
type Backend struct {
	opts Options

	mu       sync.Mutex
	capture  *stream
	playback []*stream
	outputs  map[string]*audio.Float32Buffer
	scratch  []float32
	closed   bool

	tickerOnce sync.Once
	stop       chan struct{}
	done       chan struct{}
}

// NewBackend returns a simulated backend.
func NewBackend(opts Options) *Backend {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.PeriodFrames <= 0 {
		opts.PeriodFrames = opts.SampleRate / 100
	}
	if opts.Signal == nil {
		opts.Signal = NewClickTrack(opts.Channels, opts.SampleRate)
	}
	if len(opts.Playback) == 0 {
		opts.Playback = []string{DefaultPlaybackName, HeadsetName}
	}
	return &Backend{
		opts:    opts,
		outputs: make(map[string]*audio.Float32Buffer),
		scratch: make([]float32, opts.PeriodFrames*opts.Channels),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Devices implements device.Backend.
func (b *Backend) Devices(kind device.Kind) ([]device.Info, error) {
	if kind == device.KindCapture {
		return []device.Info{{Name: DefaultCaptureName, ID: "sim:capture", IsDefault: true, Kind: kind}}, nil
	}
	infos := make([]device.Info, 0, len(b.opts.Playback))
	for i, name := range b.opts.Playback {
		infos = append(infos, device.Info{
			Index:     i,
			Name:      name,
			ID:        "sim:playback:" + name,
			IsDefault: i == 0,
			Kind:      kind,
		})
	}
	return infos, nil
}

// OpenCapture implements device.Backend. Loopback resolves name among the
// playback devices.
func (b *Backend) OpenCapture(name string, loopback bool, cfg device.StreamConfig, onData device.CaptureFunc) (device.Stream, error) {
	kind := device.KindCapture
	if loopback {
		kind = device.KindPlayback
	}
	info, err := b.resolve(kind, name, cfg)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture != nil {
		return nil, errors.Newf("simulated capture device is already open").
			Component("simulate").
			Category(errors.CategoryConflict).
			Build()
	}
	s := &stream{backend: b, name: info.Name, onStop: cfg.OnStop, capture: onData}
	b.capture = s
	return s, nil
}

// OpenPlayback implements device.Backend.
func (b *Backend) OpenPlayback(name string, cfg device.StreamConfig, onData device.PlaybackFunc) (device.Stream, error) {
	info, err := b.resolve(device.KindPlayback, name, cfg)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := &stream{backend: b, name: info.Name, onStop: cfg.OnStop, playback: onData}
	b.playback = append(b.playback, s)
	return s, nil
}

func (b *Backend) resolve(kind device.Kind, name string, cfg device.StreamConfig) (device.Info, error) {
	if int(cfg.SampleRate) != b.opts.SampleRate || cfg.Channels != b.opts.Channels {
		return device.Info{}, errors.Newf("simulated device runs at %d Hz with %d channels", b.opts.SampleRate, b.opts.Channels).
			Component("simulate").
			Category(errors.CategoryValidation).
			Context("sample_rate", cfg.SampleRate).
			Context("channels", cfg.Channels).
			Build()
	}
	infos, _ := b.Devices(kind)
	return device.SelectDevice(infos, name)
}

// Step runs one period: capture first, then every started playback stream.
func (b *Backend) Step() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stepLocked()
}

// StepN runs n periods.
func (b *Backend) StepN(n int) {
	for range n {
		b.Step()
	}
}

func (b *Backend) stepLocked() {
	if b.closed {
		return
	}
	frames := b.opts.PeriodFrames
	if b.capture != nil && b.capture.started {
		b.opts.Signal.Fill(b.scratch, frames)
		b.capture.capture(b.scratch, uint32(frames))
	}
	for _, s := range b.playback {
		if !s.started {
			continue
		}
		out := make([]float32, frames*b.opts.Channels)
		s.playback(out, uint32(frames))
		buf := b.outputs[s.name]
		if buf == nil {
			buf = &audio.Float32Buffer{
				Format:         &audio.Format{NumChannels: b.opts.Channels, SampleRate: b.opts.SampleRate},
				SourceBitDepth: 32,
			}
			b.outputs[s.name] = buf
		}
		buf.Data = append(buf.Data, out...)
	}
}

// Output returns a copy of everything played on the named device.
func (b *Backend) Output(name string) *audio.Float32Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.outputs[name]
	if buf == nil {
		return nil
	}
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: buf.Format.NumChannels, SampleRate: buf.Format.SampleRate},
		Data:           append([]float32(nil), buf.Data...),
		SourceBitDepth: buf.SourceBitDepth,
	}
}

// Unplug stops the named stream as a backend would when its device
// disappears, and calls its stop callback.
func (b *Backend) Unplug(name string) bool {
	b.mu.Lock()
	var target *stream
	if b.capture != nil && b.capture.name == name {
		target = b.capture
	}
	for _, s := range b.playback {
		if target == nil && s.name == name && s.started {
			target = s
		}
	}
	if target != nil {
		target.started = false
	}
	b.mu.Unlock()

	if target == nil {
		return false
	}
	if target.onStop != nil {
		target.onStop()
	}
	return true
}

func (b *Backend) startTicker() {
	b.tickerOnce.Do(func() {
		period := time.Duration(b.opts.PeriodFrames) * time.Second / time.Duration(b.opts.SampleRate)
		go func() {
			defer close(b.done)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-b.stop:
					return
				case <-ticker.C:
					b.Step()
				}
			}
		}()
	})
}

// Close implements device.Backend. It stops the realtime ticker.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	started := true
	b.tickerOnce.Do(func() { started = false })
	if started {
		<-b.done
	}
	return nil
}

type stream struct {
	backend  *Backend
	name     string
	onStop   func()
	capture  device.CaptureFunc
	playback device.PlaybackFunc
	started  bool
	closed   bool
}

func (s *stream) Name() string { return s.name }

func (s *stream) Start() error {
	b := s.backend
	b.mu.Lock()
	if s.closed || b.closed {
		b.mu.Unlock()
		return errors.Newf("simulated stream %s is closed", s.name).
			Component("simulate").
			Category(errors.CategoryState).
			Build()
	}
	s.started = true
	b.mu.Unlock()

	if b.opts.Realtime {
		b.startTicker()
	}
	return nil
}

func (s *stream) Stop() error {
	s.backend.mu.Lock()
	s.started = false
	s.backend.mu.Unlock()
	return nil
}

func (s *stream) Close() {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	s.started = false
	s.closed = true
	if b.capture == s {
		b.capture = nil
	}
	for i, p := range b.playback {
		if p == s {
			b.playback = append(b.playback[:i], b.playback[i+1:]...)
			break
		}
	}
}

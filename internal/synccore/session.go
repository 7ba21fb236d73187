package synccore

import (
	"math"
	"sync/atomic"

	"github.com/syncwave/syncwave/internal/errors"
)

// Session defaults.
const (
	DefaultSampleRate   = 44100
	DefaultChannels     = 2
	DefaultBufferFrames = 16 * 48000
)

// SessionConfig fixes the geometry and routing of a session.
type SessionConfig struct {
	SampleRate    uint32
	Channels      int
	BufferFrames  int // capacity of each path buffer
	Routing       RoutingMode
	Drift         DriftPolicy
	FilterFactory FilterFactory // nil selects DefaultFilterFactory
}

// DefaultSessionConfig returns a single-path stereo session at 44.1 kHz.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:   DefaultSampleRate,
		Channels:     DefaultChannels,
		BufferFrames: DefaultBufferFrames,
		Routing:      RoutingSingle,
		Drift:        DefaultDriftPolicy(),
	}
}

func (cfg SessionConfig) validate() error {
	if cfg.SampleRate == 0 {
		return sessionConfigError("sample rate must be positive", "sample_rate", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return sessionConfigError("channel count must be positive", "channels", cfg.Channels)
	}
	if cfg.Routing != RoutingSingle && cfg.Routing != RoutingDual {
		return sessionConfigError("unknown routing mode", "routing", int(cfg.Routing))
	}
	return nil
}

func sessionConfigError(msg, key string, value any) error {
	return errors.New(errors.NewStd(msg)).
		Component("synccore").
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

// Session owns the engine state for one capture-to-playback run. Device
// callbacks receive the *Session and call Capture and Playback; control
// methods may be called from any goroutine.
type Session struct {
	sc        *StreamContext
	relay     *CaptureRelay
	pipelines [numPaths]*PlaybackPipeline
	delay     *DelayController
	closed    atomic.Bool
}

// NewSession allocates buffers and builds the relay, one pipeline per active
// path and the delay controller. A nil sink discards diagnostics.
func NewSession(cfg SessionConfig, sink Sink) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.FilterFactory == nil {
		cfg.FilterFactory = DefaultFilterFactory
	}

	sc, err := newStreamContext(cfg, sink)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sc:    sc,
		relay: newCaptureRelay(sc),
		delay: &DelayController{sc: sc},
	}
	for _, p := range sc.activePaths() {
		s.pipelines[p] = newPlaybackPipeline(sc, p, cfg.FilterFactory)
	}
	return s, nil
}

// Capture hands captured frames to the relay. Called from the capture thread.
func (s *Session) Capture(in []float32, frames uint32) {
	if s.closed.Load() {
		return
	}
	s.relay.Process(in, frames)
}

// Playback fills out with frames frames for path p. Inactive paths and closed
// sessions produce silence. Called from the path's playback thread.
func (s *Session) Playback(p Path, out []float32, frames uint32) {
	n := min(int(frames)*s.sc.channels, len(out))
	if s.closed.Load() || !s.active(p) {
		clear(out[:n])
		return
	}
	s.pipelines[p].Process(out, frames)
}

func (s *Session) active(p Path) bool {
	return p >= 0 && int(p) < numPaths && s.pipelines[p] != nil
}

func (s *Session) checkPath(p Path) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.active(p) {
		return inactivePathError(p, s.sc.mode)
	}
	return nil
}

// ApplyInitialDelay pre-fills path p with ms of silence. See DelayController.
func (s *Session) ApplyInitialDelay(p Path, ms uint32) (uint32, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	return s.delay.ApplyInitialDelay(p, ms)
}

// AdjustDelay moves the target delay of path p.
func (s *Session) AdjustDelay(p Path, ms uint32) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.delay.AdjustDelay(p, ms)
}

// SetVolume sets the linear gain of path p. Gains above 1 are accepted and
// leave the signal unscaled.
func (s *Session) SetVolume(p Path, v float32) error {
	if err := s.checkPath(p); err != nil {
		return err
	}
	if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return errors.Newf("invalid volume %v", v).
			Component("synccore").
			Category(errors.CategoryValidation).
			Context("path", p.String()).
			Build()
	}
	s.sc.controls[p].SetVolume(v)
	return nil
}

// SetChannelMode selects stereo routing on path p.
func (s *Session) SetChannelMode(p Path, m ChannelMode) error {
	if err := s.checkPath(p); err != nil {
		return err
	}
	if m < ChannelBoth || m > ChannelRightOnly {
		return errors.Newf("invalid channel mode %d", int(m)).
			Component("synccore").
			Category(errors.CategoryValidation).
			Build()
	}
	s.sc.controls[p].SetChannelMode(m)
	return nil
}

// SetLowPass sets the low-pass cutoff of path p; 0 disables the filter.
func (s *Session) SetLowPass(p Path, hz int32) error {
	if err := s.checkCutoff(p, hz); err != nil {
		return err
	}
	s.sc.controls[p].SetLowPassHz(hz)
	return nil
}

// SetHighPass sets the high-pass cutoff of path p; 0 disables the filter.
func (s *Session) SetHighPass(p Path, hz int32) error {
	if err := s.checkCutoff(p, hz); err != nil {
		return err
	}
	s.sc.controls[p].SetHighPassHz(hz)
	return nil
}

func (s *Session) checkCutoff(p Path, hz int32) error {
	if err := s.checkPath(p); err != nil {
		return err
	}
	if hz < 0 {
		return errors.Newf("invalid cutoff %d Hz", hz).
			Component("synccore").
			Category(errors.CategoryValidation).
			Context("path", p.String()).
			Build()
	}
	return nil
}

// Mode returns the routing mode fixed at creation.
func (s *Session) Mode() RoutingMode { return s.sc.mode }

// ActivePaths lists the paths this session drives.
func (s *Session) ActivePaths() []Path { return s.sc.activePaths() }

// Stream exposes the shared stream state.
func (s *Session) Stream() *StreamContext { return s.sc }

// Close marks the session closed. Later callbacks emit silence and control
// calls fail with ErrSessionClosed. Close is idempotent.
func (s *Session) Close() {
	s.closed.Store(true)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// PathSnapshot is a point-in-time view of one path.
type PathSnapshot struct {
	Path              Path
	BufferedFrames    int
	CapacityFrames    int
	TargetDelayFrames uint32
	Volume            float32
	ChannelMode       ChannelMode
	LowPassHz         int32
	HighPassHz        int32
	CaptureDropped    uint64
	SkippedFrames     uint64
	PaddedFrames      uint64
	Callbacks         uint64
}

// BufferedMilliseconds converts the buffered frame count to milliseconds.
func (ps PathSnapshot) BufferedMilliseconds(sampleRate uint32) float64 {
	return FramesToMilliseconds(uint32(ps.BufferedFrames), sampleRate)
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Mode       RoutingMode
	SampleRate uint32
	Channels   int
	Closed     bool
	Paths      []PathSnapshot
}

// Path returns the snapshot of p and whether p is active.
func (s Snapshot) Path(p Path) (PathSnapshot, bool) {
	for _, ps := range s.Paths {
		if ps.Path == p {
			return ps, true
		}
	}
	return PathSnapshot{}, false
}

// Snapshot reads buffer levels, controls and counters of every active path.
// Values are read independently and may be mutually inconsistent by one callback.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:       s.sc.mode,
		SampleRate: s.sc.sampleRate,
		Channels:   s.sc.channels,
		Closed:     s.closed.Load(),
	}
	for _, p := range s.sc.activePaths() {
		ctl := &s.sc.controls[p]
		cnt := &s.sc.counters[p]
		buf := s.sc.buffers[p]
		snap.Paths = append(snap.Paths, PathSnapshot{
			Path:              p,
			BufferedFrames:    buf.AvailableRead(),
			CapacityFrames:    buf.Capacity(),
			TargetDelayFrames: ctl.TargetDelayFrames(),
			Volume:            ctl.Volume(),
			ChannelMode:       ctl.ChannelMode(),
			LowPassHz:         ctl.LowPassHz(),
			HighPassHz:        ctl.HighPassHz(),
			CaptureDropped:    cnt.captureDropped.Load(),
			SkippedFrames:     cnt.skipped.Load(),
			PaddedFrames:      cnt.padded.Load(),
			Callbacks:         cnt.callbacks.Load(),
		})
	}
	return snap
}

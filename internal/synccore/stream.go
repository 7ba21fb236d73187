package synccore

import (
	"github.com/syncwave/syncwave/internal/ringbuffer"
)

// bytesPerSample is the size of one f32 sample.
const bytesPerSample = 4

// StreamContext is the shared passive state of one session: frame geometry,
// the per-path buffers and controls, the drift policy and the diagnostics sink.
type StreamContext struct {
	sampleRate uint32
	channels   int
	frameBytes int
	mode       RoutingMode
	policy     DriftPolicy
	sink       Sink

	buffers  [numPaths]*ringbuffer.RingBuffer // path B is nil in single-path mode
	controls [numPaths]PathControl
	counters [numPaths]pathCounters
}

func newStreamContext(cfg SessionConfig, sink Sink) (*StreamContext, error) {
	sc := &StreamContext{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		frameBytes: cfg.Channels * bytesPerSample,
		mode:       cfg.Routing,
		policy:     cfg.Drift,
		sink:       sink,
	}
	if sc.sink == nil {
		sc.sink = discardSink{}
	}

	for p := range sc.controls {
		sc.controls[p].init()
	}

	for _, p := range sc.activePaths() {
		rb, err := ringbuffer.New(cfg.Channels, cfg.BufferFrames)
		if err != nil {
			return nil, err
		}
		sc.buffers[p] = rb
	}

	return sc, nil
}

func (sc *StreamContext) activePaths() []Path {
	if sc.mode == RoutingDual {
		return []Path{PathA, PathB}
	}
	return []Path{PathA}
}

// SampleRate returns the session sample rate in Hz.
func (sc *StreamContext) SampleRate() uint32 { return sc.sampleRate }

// Channels returns the interleaved channel count.
func (sc *StreamContext) Channels() int { return sc.channels }

// FrameBytes returns the size of one frame in bytes.
func (sc *StreamContext) FrameBytes() int { return sc.frameBytes }

// Mode returns the routing mode.
func (sc *StreamContext) Mode() RoutingMode { return sc.mode }

// Buffer returns the ring buffer of path p, or nil when the path is inactive.
func (sc *StreamContext) Buffer(p Path) *ringbuffer.RingBuffer {
	if p < 0 || int(p) >= numPaths {
		return nil
	}
	return sc.buffers[p]
}

// Control returns the control block of path p.
func (sc *StreamContext) Control(p Path) *PathControl {
	return &sc.controls[p]
}

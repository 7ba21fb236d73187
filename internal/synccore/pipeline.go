package synccore

import (
	"github.com/syncwave/syncwave/internal/ringbuffer"
)

// PlaybackPipeline produces output blocks for one path. It runs on that
// path's playback device thread.
type PlaybackPipeline struct {
	path     Path
	sc       *StreamContext
	buf      *ringbuffer.RingBuffer
	ctl      *PathControl
	counters *pathCounters
	effects  *EffectsChain
}

func newPlaybackPipeline(sc *StreamContext, p Path, factory FilterFactory) *PlaybackPipeline {
	return &PlaybackPipeline{
		path:     p,
		sc:       sc,
		buf:      sc.buffers[p],
		ctl:      &sc.controls[p],
		counters: &sc.counters[p],
		effects:  newEffectsChain(sc, p, factory),
	}
}

// Process fills the first frames frames of out. It never blocks: missing
// input becomes silence.
func (pp *PlaybackPipeline) Process(out []float32, frames uint32) {
	ch := pp.sc.channels
	n := min(int(frames), len(out)/ch)
	if n == 0 {
		return
	}
	block := out[:n*ch]
	pp.counters.callbacks.Add(1)

	pp.correctDrift(n)

	got := pp.buf.Read(block)
	if got < n {
		clear(block[got*ch:])
		padded := uint32(n - got)
		pp.counters.padded.Add(uint64(padded))
		pp.sc.sink.Emit(Event{
			Kind:      EventUnderrun,
			Path:      pp.path,
			Frames:    padded,
			Requested: uint32(n),
		})
	}

	pp.effects.Apply(block)
}

// correctDrift discards frames when buffered latency has grown past the
// target by more than the policy threshold.
func (pp *PlaybackPipeline) correctDrift(frameCount int) {
	target := int(pp.ctl.TargetDelayFrames())
	if target == 0 {
		return
	}

	avail := pp.buf.AvailableRead()
	threshold := target + int(pp.sc.policy.SkipThreshold)*frameCount
	if avail <= threshold {
		return
	}

	excess := avail - target - int(pp.sc.policy.SkipRetain)*frameCount
	if excess <= 0 {
		return
	}
	skipped := pp.buf.Skip(excess)
	pp.counters.skipped.Add(uint64(skipped))
	pp.sc.sink.Emit(Event{
		Kind:      EventDriftSkip,
		Path:      pp.path,
		Frames:    uint32(skipped),
		Requested: uint32(target),
	})
}

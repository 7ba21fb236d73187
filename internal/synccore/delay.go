package synccore

import (
	"fmt"
	"math"

	"github.com/syncwave/syncwave/internal/errors"
)

// MillisecondsToFrames converts a delay to frames at sampleRate, saturating
// at the largest representable frame count.
func MillisecondsToFrames(ms, sampleRate uint32) uint32 {
	frames := uint64(ms) * uint64(sampleRate) / 1000
	if frames > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(frames)
}

// FramesToMilliseconds converts a frame count to milliseconds at sampleRate.
func FramesToMilliseconds(frames, sampleRate uint32) float64 {
	if sampleRate == 0 {
		return 0
	}
	return float64(frames) * 1000 / float64(sampleRate)
}

// DelayController applies the start-up silence pre-fill and moves the
// running target delay of each path.
type DelayController struct {
	sc *StreamContext
}

// ApplyInitialDelay pre-fills path p with ms of silence and sets its target
// delay. It must run before the devices start. When the buffer cannot hold
// the whole delay, the partial pre-fill is kept and the returned error wraps
// ErrDelayPartiallyApplied; the session remains usable.
func (dc *DelayController) ApplyInitialDelay(p Path, ms uint32) (uint32, error) {
	buf := dc.sc.Buffer(p)
	if buf == nil {
		return 0, inactivePathError(p, dc.sc.mode)
	}
	if ms == 0 {
		return 0, nil
	}

	frames := MillisecondsToFrames(ms, dc.sc.sampleRate)
	written := uint32(buf.WriteSilence(int(frames)))
	dc.sc.controls[p].SetTargetDelayFrames(frames)

	if written < frames {
		dc.sc.sink.Emit(Event{Kind: EventDelayPartial, Path: p, Frames: written, Requested: frames})
		return written, errors.New(fmt.Errorf("%w: %d of %d frames on path %s", ErrDelayPartiallyApplied, written, frames, p)).
			Component("synccore").
			Category(errors.CategoryResource).
			Context("path", p.String()).
			Context("delay_ms", ms).
			Context("requested_frames", frames).
			Context("applied_frames", written).
			Build()
	}

	dc.sc.sink.Emit(Event{Kind: EventDelayApplied, Path: p, Frames: frames, Requested: frames})
	return frames, nil
}

// AdjustDelay sets a new target delay for path p without touching the buffer.
// Drift correction converges the buffered latency over later callbacks.
func (dc *DelayController) AdjustDelay(p Path, ms uint32) error {
	if dc.sc.Buffer(p) == nil {
		return inactivePathError(p, dc.sc.mode)
	}
	dc.sc.controls[p].SetTargetDelayFrames(MillisecondsToFrames(ms, dc.sc.sampleRate))
	return nil
}

func inactivePathError(p Path, mode RoutingMode) error {
	return errors.Newf("path %s is not active in %s routing", p, mode).
		Component("synccore").
		Category(errors.CategoryValidation).
		Context("path", p.String()).
		Context("routing", mode.String()).
		Build()
}

package synccore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/errors"
)

func TestMillisecondsToFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms, rate, want uint32
	}{
		{0, 44100, 0},
		{500, 44100, 22050},
		{300, 44100, 13230},
		{1000, 48000, 48000},
		{1, 44100, 44},
		{4_000_000_000, 4_000_000_000, 4294967295},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MillisecondsToFrames(tt.ms, tt.rate), "%d ms at %d Hz", tt.ms, tt.rate)
	}
	assert.InDelta(t, 500.0, FramesToMilliseconds(22050, 44100), 1e-9)
	assert.Zero(t, FramesToMilliseconds(100, 0))
}

func TestApplyInitialDelayPrefillsSilence(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, func(c *SessionConfig) { c.BufferFrames = DefaultBufferFrames })

	applied, err := s.ApplyInitialDelay(PathA, 500)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), applied)

	snap, _ := s.Snapshot().Path(PathA)
	assert.Equal(t, 22050, snap.BufferedFrames)
	assert.Equal(t, uint32(22050), snap.TargetDelayFrames)
	assert.InDelta(t, 500.0, snap.BufferedMilliseconds(44100), 1e-9)
	assert.Equal(t, 1, sink.count(EventDelayApplied))

	out := filled(1024, 0.4)
	s.Playback(PathA, out, 1024)
	assert.Equal(t, make([]float32, 2048), out, "pre-fill is silence")
}

func TestApplyInitialDelayZeroIsNoop(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, nil)
	applied, err := s.ApplyInitialDelay(PathA, 0)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Zero(t, s.Stream().Buffer(PathA).AvailableRead())
	assert.Empty(t, sink.events)
}

func TestApplyInitialDelayPartial(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, func(c *SessionConfig) { c.BufferFrames = 10_000 })

	applied, err := s.ApplyInitialDelay(PathA, 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelayPartiallyApplied)
	assert.True(t, errors.IsCategory(err, errors.CategoryResource))
	assert.Equal(t, uint32(10_000), applied)

	snap, _ := s.Snapshot().Path(PathA)
	assert.Equal(t, 10_000, snap.BufferedFrames, "partial pre-fill stays in place")
	assert.Equal(t, uint32(22050), snap.TargetDelayFrames)

	ev, ok := sink.last(EventDelayPartial)
	require.True(t, ok)
	assert.Equal(t, uint32(10_000), ev.Frames)
	assert.Equal(t, uint32(22050), ev.Requested)

	// The session keeps streaming.
	s.Capture(stereoRamp(0, 256), 256)
	out := make([]float32, 512)
	s.Playback(PathA, out, 256)
}

func TestPathBDelayRejectedInSingleRouting(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, nil)
	_, err := s.ApplyInitialDelay(PathB, 100)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Error(t, s.AdjustDelay(PathB, 100))
}

// runSteady drives capture and playback with equal block sizes and returns
// the buffered frame count after each playback callback.
func runSteady(s *Session, p Path, cycles, frames int) []int {
	levels := make([]int, 0, cycles)
	in := stereoRamp(0, frames)
	out := make([]float32, frames*2)
	for range cycles {
		s.Capture(in, uint32(frames))
		s.Playback(p, out, uint32(frames))
		levels = append(levels, s.Stream().Buffer(p).AvailableRead())
	}
	return levels
}

func TestEndToEndFiveHundredMillisecondDelay(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, func(c *SessionConfig) {
		c.SampleRate = 44100
		c.BufferFrames = 16 * 48000
	})

	applied, err := s.ApplyInitialDelay(PathA, 500)
	require.NoError(t, err)
	require.Equal(t, uint32(22050), applied)

	for i, level := range runSteady(s, PathA, 400, 441) {
		require.Equal(t, 22050, level, "cycle %d", i)
	}
	assert.Zero(t, sink.count(EventDriftSkip))
	assert.Zero(t, sink.count(EventUnderrun))
}

func TestRepeatedAdjustDelayWithSameTargetIsStable(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, nil)
	_, err := s.ApplyInitialDelay(PathA, 200)
	require.NoError(t, err)
	before := s.Stream().Buffer(PathA).AvailableRead()

	for range 50 {
		require.NoError(t, s.AdjustDelay(PathA, 200))
		levels := runSteady(s, PathA, 4, 512)
		assert.Equal(t, before, levels[len(levels)-1])
	}
	assert.Zero(t, sink.count(EventDriftSkip))
}

func TestAdjustDelayDownConvergesBySkipping(t *testing.T) {
	t.Parallel()

	s, sink := newTestSession(t, nil)
	_, err := s.ApplyInitialDelay(PathA, 500)
	require.NoError(t, err)

	require.NoError(t, s.AdjustDelay(PathA, 100))
	target := int(MillisecondsToFrames(100, 44100))

	levels := runSteady(s, PathA, 3, 512)
	assert.Equal(t, target, levels[0], "one callback converges")
	assert.Equal(t, target, levels[2])
	assert.Equal(t, 1, sink.count(EventDriftSkip))
}

func TestAdjustDelayUpDoesNotTouchBuffer(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, nil)
	_, err := s.ApplyInitialDelay(PathA, 100)
	require.NoError(t, err)
	before := s.Stream().Buffer(PathA).AvailableRead()

	require.NoError(t, s.AdjustDelay(PathA, 300))
	assert.Equal(t, before, s.Stream().Buffer(PathA).AvailableRead())
	snap, _ := s.Snapshot().Path(PathA)
	assert.Equal(t, MillisecondsToFrames(300, 44100), snap.TargetDelayFrames)
}

func TestRateMismatchConvergesWithinOneBlock(t *testing.T) {
	t.Parallel()

	const (
		frameCount = 512
		captured   = 530 // the capture clock runs ~3.5% fast
	)
	s, sink := newTestSession(t, nil)
	_, err := s.ApplyInitialDelay(PathA, 250)
	require.NoError(t, err)
	target := int(MillisecondsToFrames(250, 44100))

	in := stereoRamp(0, captured)
	out := make([]float32, frameCount*2)
	for cycle := range 2000 {
		s.Capture(in, captured)
		s.Playback(PathA, out, frameCount)
		level := s.Stream().Buffer(PathA).AvailableRead()
		require.GreaterOrEqual(t, level, target, "cycle %d", cycle)
		require.LessOrEqual(t, level, target+frameCount, "cycle %d", cycle)
	}
	assert.Positive(t, sink.count(EventDriftSkip))
	snap, _ := s.Snapshot().Path(PathA)
	assert.Positive(t, snap.SkippedFrames)
}

func TestCustomDriftPolicy(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t, func(c *SessionConfig) {
		c.Drift = DriftPolicy{SkipThreshold: 4, SkipRetain: 2}
	})
	_, err := s.ApplyInitialDelay(PathA, 100)
	require.NoError(t, err)
	target := int(MillisecondsToFrames(100, 44100))

	// 3 blocks over target stays under the threshold of 4.
	s.Capture(make([]float32, 3*256*2), 3*256)
	out := make([]float32, 256*2)
	s.Playback(PathA, out, 256)
	assert.Equal(t, target+2*256, s.Stream().Buffer(PathA).AvailableRead())

	// 5 blocks over target trims to target + 2 blocks before the read.
	s.Capture(make([]float32, 3*256*2), 3*256)
	s.Playback(PathA, out, 256)
	assert.Equal(t, target+256, s.Stream().Buffer(PathA).AvailableRead())
}

func TestDualPathOutputsAreShiftedByPathBDelay(t *testing.T) {
	t.Parallel()

	const (
		frameCount = 441
		cycles     = 80
	)
	s, _ := newTestSession(t, func(c *SessionConfig) {
		c.Routing = RoutingDual
		c.BufferFrames = 16 * 48000
	})

	_, err := s.ApplyInitialDelay(PathA, 0)
	require.NoError(t, err)
	appliedB, err := s.ApplyInitialDelay(PathB, 300)
	require.NoError(t, err)
	shift := int(appliedB)
	require.Equal(t, 13230, shift)

	var outA, outB []float32
	for cycle := range cycles {
		s.Capture(stereoRamp(cycle*frameCount+1, frameCount), frameCount)
		a := make([]float32, frameCount*2)
		b := make([]float32, frameCount*2)
		s.Playback(PathA, a, frameCount)
		s.Playback(PathB, b, frameCount)
		outA = append(outA, a...)
		outB = append(outB, b...)
	}

	assert.Equal(t, make([]float32, shift*2), outB[:shift*2], "path B starts with the pre-fill")
	assert.Equal(t, outA[:len(outA)-shift*2], outB[shift*2:])
}

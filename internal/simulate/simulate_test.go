package simulate

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/syncwave/syncwave/internal/device"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestClickTrack(t *testing.T) {
	t.Parallel()

	c := NewClickTrack(2, 4)
	out := make([]float32, 2*6)
	c.Fill(out, 6)
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0}, out)

	// position carries across calls
	c.Fill(out, 3)
	assert.Equal(t, []float32{0, 0, 1, 1, 0, 0}, out[:6])
}

func TestSineStaysInRange(t *testing.T) {
	t.Parallel()

	s := &Sine{Channels: 1, SampleRate: 8000, Frequency: 440, Amplitude: 0.5}
	out := make([]float32, 800)
	s.Fill(out, 800)
	var peak float32
	for _, v := range out {
		peak = max(peak, v, -v)
	}
	assert.InDelta(t, 0.5, peak, 0.01)
}

func TestBufferSignalPadsWithSilence(t *testing.T) {
	t.Parallel()

	b := NewBufferSignal(&audio.Float32Buffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:   []float32{0.1, 0.2, 0.3},
	})
	out := []float32{9, 9}
	b.Fill(out, 2)
	assert.Equal(t, []float32{0.1, 0.2}, out)
	b.Fill(out, 2)
	assert.Equal(t, []float32{0.3, 0}, out)
	b.Fill(out, 2)
	assert.Equal(t, []float32{0, 0}, out)
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	in := &audio.Float32Buffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 44100},
		Data:   []float32{0, 0, 0.5, -0.5, 1, -1, 2, -2},
	}
	require.NoError(t, SaveWAV(path, in))

	got, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Format.NumChannels)
	assert.Equal(t, 44100, got.Format.SampleRate)
	require.Len(t, got.Data, len(in.Data))
	want := []float32{0, 0, 0.5, -0.5, 1, -1, 1, -1}
	for i := range want {
		assert.InDelta(t, want[i], got.Data[i], 1e-3, "sample %d", i)
	}
}

func TestLoadWAVRejectsNonWAV(t *testing.T) {
	t.Parallel()

	_, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}

func TestFirstOnset(t *testing.T) {
	t.Parallel()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{NumChannels: 2},
		Data:   []float32{0, 0, 0.01, 0, 0, -0.9, 0, 0},
	}
	assert.Equal(t, 2, FirstOnset(buf, 0.5))
	assert.Equal(t, -1, FirstOnset(buf, 1))
}

func streamConfig() device.StreamConfig {
	return device.StreamConfig{SampleRate: 1000, Channels: 1}
}

func TestBackendStepEchoesCaptureToPlayback(t *testing.T) {
	t.Parallel()

	b := NewBackend(Options{SampleRate: 1000, Channels: 1, PeriodFrames: 4, Signal: NewClickTrack(1, 8)})
	defer func() { require.NoError(t, b.Close()) }()

	var mu sync.Mutex
	var pending []float32
	capture, err := b.OpenCapture("default", true, streamConfig(), func(in []float32, frames uint32) {
		mu.Lock()
		pending = append(pending, in[:frames]...)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaybackName, capture.Name())

	playback, err := b.OpenPlayback("headset", streamConfig(), func(out []float32, frames uint32) {
		mu.Lock()
		n := copy(out[:frames], pending)
		pending = pending[n:]
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, HeadsetName, playback.Name())

	require.NoError(t, capture.Start())
	require.NoError(t, playback.Start())
	b.StepN(4)

	out := b.Output(HeadsetName)
	require.NotNil(t, out)
	assert.Len(t, out.Data, 16)
	assert.Equal(t, 0, FirstOnset(out, 0.5))
	assert.Nil(t, b.Output(DefaultPlaybackName))
}

func TestBackendRejectsMismatchedFormat(t *testing.T) {
	t.Parallel()

	b := NewBackend(Options{SampleRate: 1000, Channels: 1})
	defer func() { require.NoError(t, b.Close()) }()

	_, err := b.OpenPlayback("default", device.StreamConfig{SampleRate: 48000, Channels: 1}, func([]float32, uint32) {})
	require.Error(t, err)

	_, err = b.OpenPlayback("Bluetooth", streamConfig(), func([]float32, uint32) {})
	require.Error(t, err)
}

func TestBackendUnplugCallsOnStop(t *testing.T) {
	t.Parallel()

	b := NewBackend(Options{SampleRate: 1000, Channels: 1})
	defer func() { require.NoError(t, b.Close()) }()

	var stopped atomic.Bool
	cfg := streamConfig()
	cfg.OnStop = func() { stopped.Store(true) }
	s, err := b.OpenPlayback("default", cfg, func([]float32, uint32) {})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	assert.True(t, b.Unplug(DefaultPlaybackName))
	assert.True(t, stopped.Load())
	assert.False(t, b.Unplug("nothing"))

	s.Close()
	require.Error(t, s.Start())
}

func TestBackendRealtimeTickerStopsOnClose(t *testing.T) {
	t.Parallel()

	b := NewBackend(Options{SampleRate: 1000, Channels: 1, PeriodFrames: 5, Realtime: true})

	var calls atomic.Int32
	s, err := b.OpenPlayback("default", streamConfig(), func([]float32, uint32) { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

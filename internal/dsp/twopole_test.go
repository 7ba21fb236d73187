package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 44100

// sine returns an interleaved stereo sine with identical channels.
func sine(freq float64, frames int) []float32 {
	out := make([]float32, frames*2)
	for i := range frames {
		v := float32(math.Sin(2 * math.Pi * freq * float64(i) / testRate))
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// settledGain filters a tone and compares the RMS of the second half to the input.
func settledGain(t *testing.T, f *TwoPole, freq float64) float64 {
	t.Helper()
	in := sine(freq, testRate/2)
	out := append([]float32(nil), in...)
	f.Process(out)
	half := len(out) / 2
	return rms(out[half:]) / rms(in[half:])
}

func TestLowPassResponse(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(LowPass, 2)
	f.Init(500, testRate)
	assert.Greater(t, settledGain(t, f, 60), 0.95)

	f = NewTwoPole(LowPass, 2)
	f.Init(500, testRate)
	assert.Less(t, settledGain(t, f, 8000), 0.01)
}

func TestHighPassResponse(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(HighPass, 2)
	f.Init(2000, testRate)
	assert.Less(t, settledGain(t, f, 60), 0.01)

	f = NewTwoPole(HighPass, 2)
	f.Init(2000, testRate)
	assert.Greater(t, settledGain(t, f, 12000), 0.95)
}

func TestProcessBeforeInitIsPassthrough(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(LowPass, 2)
	in := sine(1000, 64)
	out := append([]float32(nil), in...)
	f.Process(out)
	assert.Equal(t, in, out)
	assert.False(t, f.Ready())

	f.Retune(300)
	assert.False(t, f.Ready(), "retune does not initialize")
}

func TestRetuneKeepsDelayLineState(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(LowPass, 2)
	f.Init(1000, testRate)
	f.Process(sine(440, 256))

	before := [2][2]float64{f.State(0), f.State(1)}
	require.NotEqual(t, [2]float64{}, before[0])

	f.Retune(3000)
	assert.Equal(t, before, [2][2]float64{f.State(0), f.State(1)})
	assert.Equal(t, 2, f.Channels())
	assert.InDelta(t, 3000, f.Cutoff(), 0)
}

func TestCutoffClampedBelowNyquist(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(HighPass, 2)
	f.Init(30000, testRate)
	assert.InDelta(t, testRate*maxCutoffRatio, f.Cutoff(), 1e-9)

	out := sine(15000, 1024)
	f.Process(out)
	for _, s := range out {
		require.False(t, math.IsNaN(float64(s)))
	}
}

func TestChannelsFilteredIndependently(t *testing.T) {
	t.Parallel()

	f := NewTwoPole(LowPass, 2)
	f.Init(200, testRate)

	block := make([]float32, 512*2)
	for i := range 512 {
		block[2*i] = 1 // DC on the left only
	}
	f.Process(block)
	for i := range 512 {
		assert.Zero(t, block[2*i+1])
	}
	assert.InDelta(t, 1.0, block[len(block)-2], 0.05)
}

func TestKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "lowpass", LowPass.String())
	assert.Equal(t, "highpass", HighPass.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

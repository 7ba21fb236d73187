// Package dsp provides the per-channel filter primitives used by the
// playback effects chain.
package dsp

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Kind selects the response of a TwoPole filter.
type Kind int

const (
	LowPass Kind = iota
	HighPass
)

func (k Kind) String() string {
	switch k {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	default:
		return "unknown"
	}
}

// butterworthQ gives a maximally flat second-order response.
const butterworthQ = 1 / math.Sqrt2

// maxCutoffRatio keeps designed cutoffs safely below Nyquist.
const maxCutoffRatio = 0.45

// TwoPole is a second-order Butterworth low- or high-pass filter applied
// independently to each channel of an interleaved float32 block.
//
// Sections are allocated up front so that Init, Retune and Process never
// allocate. A TwoPole is not safe for concurrent use; it belongs to one
// playback thread.
type TwoPole struct {
	kind       Kind
	sampleRate float64
	cutoffHz   float64
	sections   []biquad.Section
	ready      bool
}

// NewTwoPole returns an uninitialized filter for the given channel count.
func NewTwoPole(kind Kind, channels int) *TwoPole {
	return &TwoPole{
		kind:     kind,
		sections: make([]biquad.Section, max(channels, 1)),
	}
}

// Init designs coefficients for cutoffHz at sampleRate and clears the delay lines.
func (f *TwoPole) Init(cutoffHz, sampleRate float64) {
	f.sampleRate = sampleRate
	coeffs := f.design(cutoffHz)
	for i := range f.sections {
		f.sections[i].Coefficients = coeffs
		f.sections[i].Reset()
	}
	f.ready = true
}

// Retune swaps in coefficients for a new cutoff while keeping the delay-line
// state, so the signal continues without a click.
func (f *TwoPole) Retune(cutoffHz float64) {
	if !f.ready {
		return
	}
	coeffs := f.design(cutoffHz)
	for i := range f.sections {
		f.sections[i].Coefficients = coeffs
	}
}

// Process filters an interleaved block in place. Trailing partial frames are ignored.
func (f *TwoPole) Process(samples []float32) {
	if !f.ready {
		return
	}
	channels := len(f.sections)
	for frame := 0; frame+channels <= len(samples); frame += channels {
		for ch := range channels {
			samples[frame+ch] = float32(f.sections[ch].ProcessSample(float64(samples[frame+ch])))
		}
	}
}

// Kind reports the filter response.
func (f *TwoPole) Kind() Kind { return f.kind }

// Cutoff returns the cutoff currently designed into the coefficients.
func (f *TwoPole) Cutoff() float64 { return f.cutoffHz }

// Channels returns the number of independent sections.
func (f *TwoPole) Channels() int { return len(f.sections) }

// Ready reports whether Init has run.
func (f *TwoPole) Ready() bool { return f.ready }

// State returns the delay-line state of one channel.
func (f *TwoPole) State(ch int) [2]float64 {
	return f.sections[ch].State()
}

func (f *TwoPole) design(cutoffHz float64) biquad.Coefficients {
	if limit := f.sampleRate * maxCutoffRatio; cutoffHz > limit {
		cutoffHz = limit
	}
	f.cutoffHz = cutoffHz

	if f.kind == HighPass {
		return design.Highpass(cutoffHz, butterworthQ, f.sampleRate)
	}
	return design.Lowpass(cutoffHz, butterworthQ, f.sampleRate)
}

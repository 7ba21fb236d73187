// Package simulate provides a software audio backend: a generated or
// file-backed capture source and playback sinks that record what they are
// given. It drives a session without sound hardware and measures the delay
// each output path applies.
package simulate

import (
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/syncwave/syncwave/internal/errors"
)

// Signal produces interleaved capture samples.
type Signal interface {
	// Fill writes frames frames into out, which holds frames*channels samples.
	Fill(out []float32, frames int)
}

// ClickTrack emits a full-scale single-sample click every Interval frames,
// starting at frame 0, with silence in between.
type ClickTrack struct {
	Channels int
	Interval int
	pos      int
}

// NewClickTrack returns a click track with one click per interval frames.
func NewClickTrack(channels, interval int) *ClickTrack {
	return &ClickTrack{Channels: channels, Interval: max(interval, 1)}
}

// Fill implements Signal.
func (c *ClickTrack) Fill(out []float32, frames int) {
	clear(out[:frames*c.Channels])
	for f := range frames {
		if c.pos%c.Interval == 0 {
			for ch := range c.Channels {
				out[f*c.Channels+ch] = 1
			}
		}
		c.pos++
	}
}

// Sine is a continuous tone on every channel.
type Sine struct {
	Channels   int
	SampleRate int
	Frequency  float64
	Amplitude  float64
	phase      float64
}

// Fill implements Signal.
func (s *Sine) Fill(out []float32, frames int) {
	step := 2 * math.Pi * s.Frequency / float64(s.SampleRate)
	for f := range frames {
		v := float32(s.Amplitude * math.Sin(s.phase))
		for ch := range s.Channels {
			out[f*s.Channels+ch] = v
		}
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// BufferSignal plays a buffer once and then silence.
type BufferSignal struct {
	buf *audio.Float32Buffer
	pos int
}

// NewBufferSignal plays buf. Its channel count must match the session.
func NewBufferSignal(buf *audio.Float32Buffer) *BufferSignal {
	return &BufferSignal{buf: buf}
}

// Fill implements Signal.
func (b *BufferSignal) Fill(out []float32, frames int) {
	n := frames * b.buf.Format.NumChannels
	copied := copy(out[:n], b.buf.Data[min(b.pos, len(b.buf.Data)):])
	clear(out[copied:n])
	b.pos += copied
}

// LoadWAV decodes a PCM WAV file into float samples in [-1, 1].
func LoadWAV(path string) (*audio.Float32Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("simulate").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.Newf("%s is not a valid WAV file", path).
			Component("simulate").
			Category(errors.CategoryValidation).
			FileContext(path).
			Build()
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component("simulate").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Context("operation", "decode_wav").
			Build()
	}

	scale := float32(1) / float32(int(1)<<(max(int(dec.BitDepth), 1)-1))
	out := &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
		Data:           make([]float32, len(pcm.Data)),
		SourceBitDepth: int(dec.BitDepth),
	}
	for i, v := range pcm.Data {
		out.Data[i] = float32(v) * scale
	}
	return out, nil
}

// SaveWAV writes buf as a 16-bit PCM WAV file.
func SaveWAV(path string, buf *audio.Float32Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("simulate").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer f.Close()

	ints := &audio.IntBuffer{
		Format:         buf.Format,
		Data:           make([]int, len(buf.Data)),
		SourceBitDepth: 16,
	}
	for i, v := range buf.Data {
		ints.Data[i] = int(math.Round(float64(max(min(v, 1), -1)) * math.MaxInt16))
	}

	enc := wav.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	if err := enc.Write(ints); err != nil {
		return errors.New(err).
			Component("simulate").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Context("operation", "encode_wav").
			Build()
	}
	return enc.Close()
}

// FirstOnset returns the frame index of the first sample whose magnitude
// reaches threshold, or -1.
func FirstOnset(buf *audio.Float32Buffer, threshold float32) int {
	channels := max(buf.Format.NumChannels, 1)
	for i, v := range buf.Data {
		if v >= threshold || v <= -threshold {
			return i / channels
		}
	}
	return -1
}

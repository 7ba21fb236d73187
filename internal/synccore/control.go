package synccore

import (
	"math"
	"sync/atomic"
)

// PathControl holds the live parameters of one output path. Every field is
// an independent atomic: writers never tear a value, and the playback thread
// sees each update no later than its next callback.
type PathControl struct {
	targetDelayFrames atomic.Uint32
	volumeBits        atomic.Uint32
	channelMode       atomic.Int32
	lowPassHz         atomic.Int32
	highPassHz        atomic.Int32
}

func (c *PathControl) init() {
	c.volumeBits.Store(math.Float32bits(1))
}

// TargetDelayFrames returns the delay the drift corrector converges to.
func (c *PathControl) TargetDelayFrames() uint32 { return c.targetDelayFrames.Load() }

// SetTargetDelayFrames sets the delay the drift corrector converges to.
func (c *PathControl) SetTargetDelayFrames(frames uint32) { c.targetDelayFrames.Store(frames) }

// Volume returns the linear gain. Values at or above 1 pass audio unscaled.
func (c *PathControl) Volume() float32 { return math.Float32frombits(c.volumeBits.Load()) }

// SetVolume stores a linear gain.
func (c *PathControl) SetVolume(v float32) { c.volumeBits.Store(math.Float32bits(v)) }

func (c *PathControl) ChannelMode() ChannelMode { return ChannelMode(c.channelMode.Load()) }

func (c *PathControl) SetChannelMode(m ChannelMode) { c.channelMode.Store(int32(m)) }

// LowPassHz returns the low-pass target cutoff; 0 disables the filter.
func (c *PathControl) LowPassHz() int32 { return c.lowPassHz.Load() }

func (c *PathControl) SetLowPassHz(hz int32) { c.lowPassHz.Store(hz) }

// HighPassHz returns the high-pass target cutoff; 0 disables the filter.
func (c *PathControl) HighPassHz() int32 { return c.highPassHz.Load() }

func (c *PathControl) SetHighPassHz(hz int32) { c.highPassHz.Store(hz) }

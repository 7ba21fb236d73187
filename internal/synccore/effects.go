package synccore

import (
	"github.com/syncwave/syncwave/internal/dsp"
)

// Filter is the capability the effects chain needs from a filter primitive.
// Init designs the filter for a cutoff and clears its state, Retune changes
// the cutoff while keeping state, and Process filters an interleaved block in
// place. Implementations are used from a single playback thread.
type Filter interface {
	Init(cutoffHz, sampleRate float64)
	Retune(cutoffHz float64)
	Process(samples []float32)
}

// FilterFactory builds the filter for one stage of a path. It is called when
// a session is created, never on an audio thread.
type FilterFactory func(kind dsp.Kind, channels int) Filter

// DefaultFilterFactory builds second-order Butterworth sections.
func DefaultFilterFactory(kind dsp.Kind, channels int) Filter {
	return dsp.NewTwoPole(kind, channels)
}

// filterStage pairs a filter with the cutoff it was last designed for. The
// active cutoff is private to the playback thread; the public target lives in
// PathControl.
type filterStage struct {
	stage          FilterStage
	filter         Filter
	activeCutoffHz int32
}

// apply runs the stage for one block, initializing or retuning first when the
// target moved. Targets below MinFilterHz bypass the stage and drop the
// active cutoff, so the next enable starts from a fresh Init.
func (s *filterStage) apply(ec *EffectsChain, block []float32, target int32) {
	if target < MinFilterHz {
		s.activeCutoffHz = 0
		return
	}

	switch {
	case s.activeCutoffHz == 0:
		s.filter.Init(float64(target), float64(ec.sampleRate))
		s.activeCutoffHz = target
		ec.sink.Emit(Event{Kind: EventFilterInit, Path: ec.path, Stage: s.stage, CutoffHz: target})
	case s.activeCutoffHz != target:
		s.filter.Retune(float64(target))
		s.activeCutoffHz = target
		ec.sink.Emit(Event{Kind: EventFilterRetune, Path: ec.path, Stage: s.stage, CutoffHz: target})
	}

	s.filter.Process(block)
}

// EffectsChain applies volume, channel routing, low-pass and high-pass
// filtering, in that order, to one path's output blocks.
type EffectsChain struct {
	path       Path
	ctl        *PathControl
	channels   int
	sampleRate uint32
	sink       Sink

	lowPass  filterStage
	highPass filterStage
}

func newEffectsChain(sc *StreamContext, p Path, factory FilterFactory) *EffectsChain {
	return &EffectsChain{
		path:       p,
		ctl:        &sc.controls[p],
		channels:   sc.channels,
		sampleRate: sc.sampleRate,
		sink:       sc.sink,
		lowPass:    filterStage{stage: StageLowPass, filter: factory(dsp.LowPass, sc.channels)},
		highPass:   filterStage{stage: StageHighPass, filter: factory(dsp.HighPass, sc.channels)},
	}
}

// Apply processes an interleaved block in place.
func (ec *EffectsChain) Apply(block []float32) {
	// Gains of 1 and above leave samples untouched.
	if vol := ec.ctl.Volume(); vol < 1 {
		for i := range block {
			block[i] *= vol
		}
	}

	ec.routeChannels(block)

	ec.lowPass.apply(ec, block, ec.ctl.LowPassHz())
	ec.highPass.apply(ec, block, ec.ctl.HighPassHz())
}

// routeChannels duplicates one stereo channel over the other. Layouts other
// than stereo are left alone.
func (ec *EffectsChain) routeChannels(block []float32) {
	if ec.channels != 2 {
		return
	}
	switch ec.ctl.ChannelMode() {
	case ChannelLeftOnly:
		for i := 0; i+1 < len(block); i += 2 {
			block[i+1] = block[i]
		}
	case ChannelRightOnly:
		for i := 0; i+1 < len(block); i += 2 {
			block[i] = block[i+1]
		}
	}
}

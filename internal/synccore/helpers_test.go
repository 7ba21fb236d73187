package synccore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syncwave/syncwave/internal/dsp"
)

// recordingSink keeps every event for inspection.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSink) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// countingFilter records how the effects chain drives a filter.
type countingFilter struct {
	kind      dsp.Kind
	inits     int
	retunes   int
	processed int
	cutoff    float64
	state     []float64
}

func (f *countingFilter) Init(cutoffHz, _ float64) {
	f.inits++
	f.cutoff = cutoffHz
}

func (f *countingFilter) Retune(cutoffHz float64) {
	f.retunes++
	f.cutoff = cutoffHz
}

func (f *countingFilter) Process(samples []float32) {
	f.processed++
}

type filterRegistry struct {
	filters map[dsp.Kind]*countingFilter
}

func (r *filterRegistry) factory(kind dsp.Kind, channels int) Filter {
	f := &countingFilter{kind: kind, state: make([]float64, 2*channels)}
	r.filters[kind] = f
	return f
}

func newTestSession(t *testing.T, mutate func(*SessionConfig)) (*Session, *recordingSink) {
	t.Helper()
	cfg := DefaultSessionConfig()
	cfg.BufferFrames = 1 << 16
	if mutate != nil {
		mutate(&cfg)
	}
	sink := &recordingSink{}
	s, err := NewSession(cfg, sink)
	require.NoError(t, err)
	return s, sink
}

// stereoRamp returns frames stereo frames whose left sample is start+i and
// whose right sample is its negation.
func stereoRamp(start, frames int) []float32 {
	out := make([]float32, frames*2)
	for i := range frames {
		out[2*i] = float32(start + i)
		out[2*i+1] = -float32(start + i)
	}
	return out
}

func filled(frames int, v float32) []float32 {
	out := make([]float32, frames*2)
	for i := range out {
		out[i] = v
	}
	return out
}

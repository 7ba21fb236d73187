package synccore

import "sync/atomic"

// EventKind classifies a diagnostic event raised by the engine.
type EventKind uint8

const (
	// EventCaptureDrop: a path buffer was full and captured frames were discarded.
	EventCaptureDrop EventKind = iota + 1
	// EventDriftSkip: buffered latency exceeded the target and frames were skipped.
	EventDriftSkip
	// EventUnderrun: the path buffer ran dry and output was padded with silence.
	EventUnderrun
	// EventDelayApplied: an initial delay was pre-filled in full.
	EventDelayApplied
	// EventDelayPartial: an initial delay did not fit the path buffer.
	EventDelayPartial
	// EventFilterInit: a filter stage was initialized on first use.
	EventFilterInit
	// EventFilterRetune: a filter stage moved to a new cutoff.
	EventFilterRetune
)

func (k EventKind) String() string {
	switch k {
	case EventCaptureDrop:
		return "capture_drop"
	case EventDriftSkip:
		return "drift_skip"
	case EventUnderrun:
		return "underrun"
	case EventDelayApplied:
		return "delay_applied"
	case EventDelayPartial:
		return "delay_partial"
	case EventFilterInit:
		return "filter_init"
	case EventFilterRetune:
		return "filter_retune"
	default:
		return "unknown"
	}
}

// FilterStage names the filter an event refers to.
type FilterStage uint8

const (
	StageNone FilterStage = iota
	StageLowPass
	StageHighPass
)

func (s FilterStage) String() string {
	switch s {
	case StageLowPass:
		return "lowpass"
	case StageHighPass:
		return "highpass"
	default:
		return ""
	}
}

// Event is a value-type diagnostic. It carries no pointers so that sending it
// from an audio thread never allocates.
type Event struct {
	Kind      EventKind
	Path      Path
	Stage     FilterStage
	Frames    uint32 // frames dropped, skipped, padded or pre-filled
	Requested uint32 // frames requested, where meaningful
	CutoffHz  int32
}

// Sink receives engine diagnostics. Emit is called from audio threads and
// must return immediately.
type Sink interface {
	Emit(Event)
}

// ChannelSink is the standard Sink: a buffered channel drained by a
// diagnostics reporter. Events that do not fit are counted and discarded.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewChannelSink returns a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(size, 1))}
}

// Emit queues e without blocking.
func (s *ChannelSink) Emit(e Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the queue.
func (s *ChannelSink) Events() <-chan Event { return s.events }

// Dropped returns the number of events discarded because the queue was full.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }

type discardSink struct{}

func (discardSink) Emit(Event) {}

// pathCounters accumulate frame totals per path for snapshots and metrics.
type pathCounters struct {
	captureDropped atomic.Uint64
	skipped        atomic.Uint64
	padded         atomic.Uint64
	callbacks      atomic.Uint64
}

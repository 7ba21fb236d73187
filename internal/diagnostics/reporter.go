package diagnostics

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/synccore"
)

// DefaultPollInterval is how often the reporter samples session snapshots.
const DefaultPollInterval = time.Second

// EventSource is the receive side of an engine event queue.
type EventSource interface {
	Events() <-chan synccore.Event
	Dropped() uint64
}

// SnapshotSource supplies periodic session snapshots.
type SnapshotSource interface {
	Snapshot() synccore.Snapshot
}

// ReporterOptions configures a Reporter. Zero values select defaults.
type ReporterOptions struct {
	Logger       logger.Logger
	Metrics      *metrics.SyncMetrics
	RateLimit    float64 // log lines per second per event kind
	Burst        int
	JournalSize  int // bytes, 0 disables the journal
	PollInterval time.Duration
	Snapshot     SnapshotSource
	// OnEvent is called for every event on the reporter goroutine. It must
	// not block.
	OnEvent func(synccore.Event)
}

type kindLimiter struct {
	limiter    *rate.Limiter
	suppressed uint64
}

// Reporter drains engine events off the audio threads. Every event is
// counted and journaled; log lines are rate limited per event kind.
type Reporter struct {
	source  EventSource
	opts    ReporterOptions
	log     logger.Logger
	journal *Journal

	mu       sync.Mutex
	limiters map[synccore.EventKind]*kindLimiter
	counts   map[synccore.EventKind]uint64

	lastDropped uint64
}

// NewReporter returns a reporter for source.
func NewReporter(source EventSource, opts ReporterOptions) *Reporter {
	if opts.Logger == nil {
		opts.Logger = GetLogger()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Reporter{
		source:   source,
		opts:     opts,
		log:      opts.Logger,
		journal:  NewJournal(opts.JournalSize),
		limiters: make(map[synccore.EventKind]*kindLimiter),
		counts:   make(map[synccore.EventKind]uint64),
	}
}

// Journal returns the event journal, nil when disabled.
func (r *Reporter) Journal() *Journal { return r.journal }

// Count returns how many events of kind have been handled.
func (r *Reporter) Count(kind synccore.EventKind) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Run handles events until ctx is done, then drains what is already queued.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	events := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			r.drain(events)
			r.poll()
			return nil
		case e, ok := <-events:
			if !ok {
				r.poll()
				return nil
			}
			r.Handle(e)
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Reporter) drain(events <-chan synccore.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			r.Handle(e)
		default:
			return
		}
	}
}

// Handle processes one event. Run calls it for every queued event.
func (r *Reporter) Handle(e synccore.Event) {
	now := time.Now()
	r.journal.Append(now, e)

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordEvent(e.Kind.String(), e.Path.String())
	}

	r.mu.Lock()
	r.counts[e.Kind]++
	kl := r.limiters[e.Kind]
	if kl == nil {
		kl = &kindLimiter{limiter: rate.NewLimiter(rate.Limit(r.opts.RateLimit), r.opts.Burst)}
		r.limiters[e.Kind] = kl
	}
	allowed := kl.limiter.AllowN(now, 1)
	var suppressed uint64
	if allowed {
		suppressed = kl.suppressed
		kl.suppressed = 0
	} else {
		kl.suppressed++
	}
	r.mu.Unlock()

	if allowed {
		r.logEvent(e, suppressed)
	}

	if r.opts.OnEvent != nil {
		r.opts.OnEvent(e)
	}
}

func (r *Reporter) logEvent(e synccore.Event, suppressed uint64) {
	fields := []logger.Field{
		logger.String("event", e.Kind.String()),
		logger.String("path", e.Path.String()),
	}
	switch e.Kind {
	case synccore.EventFilterInit, synccore.EventFilterRetune:
		fields = append(fields,
			logger.String("stage", e.Stage.String()),
			logger.Int("cutoff_hz", int(e.CutoffHz)))
	case synccore.EventDelayApplied, synccore.EventDelayPartial:
		fields = append(fields,
			logger.Int("frames", int(e.Frames)),
			logger.Int("requested_frames", int(e.Requested)))
	default:
		fields = append(fields, logger.Int("frames", int(e.Frames)))
	}
	if suppressed > 0 {
		fields = append(fields, logger.Uint64("suppressed", suppressed))
	}

	switch e.Kind {
	case synccore.EventCaptureDrop:
		r.log.Warn("path buffer full, captured frames dropped", fields...)
	case synccore.EventUnderrun:
		r.log.Warn("path buffer underrun, padded with silence", fields...)
	case synccore.EventDelayPartial:
		r.log.Warn("initial delay only partially applied", fields...)
	case synccore.EventDriftSkip:
		r.log.Info("latency above target, frames skipped", fields...)
	case synccore.EventDelayApplied:
		r.log.Info("initial delay applied", fields...)
	case synccore.EventFilterInit:
		r.log.Debug("filter initialized", fields...)
	case synccore.EventFilterRetune:
		r.log.Debug("filter retuned", fields...)
	default:
		r.log.Debug("engine event", fields...)
	}
}

// poll samples snapshot gauges and the queue overflow counter.
func (r *Reporter) poll() {
	dropped := r.source.Dropped()
	if dropped > r.lastDropped {
		delta := dropped - r.lastDropped
		r.lastDropped = dropped
		if r.opts.Metrics != nil {
			r.opts.Metrics.AddDroppedEvents(delta)
		}
		r.log.Warn("diagnostic events lost to a full queue", logger.Uint64("count", delta))
	}

	if r.opts.Metrics == nil || r.opts.Snapshot == nil {
		return
	}
	snap := r.opts.Snapshot.Snapshot()
	for _, ps := range snap.Paths {
		r.opts.Metrics.ObservePath(PathSample(ps))
	}
}

// PathSample converts an engine path snapshot to a metrics sample.
func PathSample(ps synccore.PathSnapshot) metrics.PathSample {
	return metrics.PathSample{
		Path:              ps.Path.String(),
		BufferedFrames:    ps.BufferedFrames,
		CapacityFrames:    ps.CapacityFrames,
		TargetDelayFrames: ps.TargetDelayFrames,
		Volume:            float64(ps.Volume),
		LowPassHz:         ps.LowPassHz,
		HighPassHz:        ps.HighPassHz,
		CaptureDropped:    ps.CaptureDropped,
		SkippedFrames:     ps.SkippedFrames,
		PaddedFrames:      ps.PaddedFrames,
		Callbacks:         ps.Callbacks,
	}
}

package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/syncwave/syncwave/internal/logger"
)

// PathSample is one periodic reading of an output path. Totals are
// cumulative since session start; SyncMetrics converts them to counter
// increments.
type PathSample struct {
	Path              string
	BufferedFrames    int
	CapacityFrames    int
	TargetDelayFrames uint32
	Volume            float64
	LowPassHz         int32
	HighPassHz        int32
	CaptureDropped    uint64
	SkippedFrames     uint64
	PaddedFrames      uint64
	Callbacks         uint64
}

type pathTotals struct {
	captureDropped, skipped, padded, callbacks uint64
}

// SyncMetrics contains Prometheus metrics for the synchronization engine.
type SyncMetrics struct {
	EventsTotal       *prometheus.CounterVec // engine events by kind and path
	EventsDropped     prometheus.Counter     // events lost because the diagnostics queue was full
	FramesTotal       *prometheus.CounterVec // frames by path and reason: capture_drop, skip, pad
	CallbacksTotal    *prometheus.CounterVec // playback callbacks by path
	BufferedFrames    *prometheus.GaugeVec   // frames currently buffered per path
	BufferFill        *prometheus.GaugeVec   // buffered / capacity per path
	TargetDelayFrames *prometheus.GaugeVec   // configured target per path
	Volume            *prometheus.GaugeVec   // linear gain per path
	FilterCutoff      *prometheus.GaugeVec   // cutoff per path and stage, 0 when bypassed
	SessionActive     prometheus.Gauge
	SessionsStarted   prometheus.Counter
	registry          *prometheus.Registry

	mu   sync.Mutex
	last map[string]pathTotals
}

// NewSyncMetrics creates and registers the engine metrics.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry, last: make(map[string]pathTotals)}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_events_total",
		Help:      "Engine diagnostic events by kind and path",
	}, []string{"kind", "path"})

	m.EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_events_dropped_total",
		Help:      "Diagnostic events discarded because the event queue was full",
	})

	m.FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_frames_total",
		Help:      "Frames dropped at capture, skipped for drift, or padded with silence",
	}, []string{"path", "reason"})

	m.CallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "engine_playback_callbacks_total",
		Help:      "Playback callbacks served per path",
	}, []string{"path"})

	m.BufferedFrames = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "engine_buffered_frames",
		Help:      "Frames buffered in the path ring buffer",
	}, []string{"path"})

	m.BufferFill = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "engine_buffer_fill_ratio",
		Help:      "Ring buffer fill ratio (0.0 to 1.0)",
	}, []string{"path"})

	m.TargetDelayFrames = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "engine_target_delay_frames",
		Help:      "Target delay of the path in frames",
	}, []string{"path"})

	m.Volume = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "engine_volume",
		Help:      "Linear output gain of the path",
	}, []string{"path"})

	m.FilterCutoff = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "engine_filter_cutoff_hz",
		Help:      "Configured filter cutoff, 0 when the stage is bypassed",
	}, []string{"path", "stage"})

	m.SessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "session_active",
		Help:      "1 while a session is streaming",
	})

	m.SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "sessions_started_total",
		Help:      "Sessions started since process start",
	})
}

func (m *SyncMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.EventsTotal,
		m.EventsDropped,
		m.FramesTotal,
		m.CallbacksTotal,
		m.BufferedFrames,
		m.BufferFill,
		m.TargetDelayFrames,
		m.Volume,
		m.FilterCutoff,
		m.SessionActive,
		m.SessionsStarted,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.getCollectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.getCollectors() {
		c.Collect(ch)
	}
}

// RecordEvent counts one engine event.
func (m *SyncMetrics) RecordEvent(kind, path string) {
	m.EventsTotal.WithLabelValues(kind, path).Inc()
}

// AddDroppedEvents counts events lost to a full queue.
func (m *SyncMetrics) AddDroppedEvents(n uint64) {
	if n > 0 {
		m.EventsDropped.Add(float64(n))
	}
}

// SessionStarted marks a session as streaming and resets per-path totals.
func (m *SyncMetrics) SessionStarted() {
	m.mu.Lock()
	clear(m.last)
	m.mu.Unlock()
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// SessionStopped marks the session as stopped.
func (m *SyncMetrics) SessionStopped() {
	m.SessionActive.Set(0)
}

// ObservePath updates gauges from a sample and adds the growth of its
// cumulative totals since the previous sample to the counters.
func (m *SyncMetrics) ObservePath(s PathSample) {
	m.BufferedFrames.WithLabelValues(s.Path).Set(float64(s.BufferedFrames))
	if s.CapacityFrames > 0 {
		m.BufferFill.WithLabelValues(s.Path).Set(float64(s.BufferedFrames) / float64(s.CapacityFrames))
	}
	m.TargetDelayFrames.WithLabelValues(s.Path).Set(float64(s.TargetDelayFrames))
	m.Volume.WithLabelValues(s.Path).Set(s.Volume)
	m.FilterCutoff.WithLabelValues(s.Path, "lowpass").Set(float64(s.LowPassHz))
	m.FilterCutoff.WithLabelValues(s.Path, "highpass").Set(float64(s.HighPassHz))

	m.mu.Lock()
	prev := m.last[s.Path]
	m.last[s.Path] = pathTotals{
		captureDropped: s.CaptureDropped,
		skipped:        s.SkippedFrames,
		padded:         s.PaddedFrames,
		callbacks:      s.Callbacks,
	}
	m.mu.Unlock()

	m.addDelta(m.FramesTotal.WithLabelValues(s.Path, "capture_drop"), prev.captureDropped, s.CaptureDropped)
	m.addDelta(m.FramesTotal.WithLabelValues(s.Path, "skip"), prev.skipped, s.SkippedFrames)
	m.addDelta(m.FramesTotal.WithLabelValues(s.Path, "pad"), prev.padded, s.PaddedFrames)
	m.addDelta(m.CallbacksTotal.WithLabelValues(s.Path), prev.callbacks, s.Callbacks)
}

func (m *SyncMetrics) addDelta(c prometheus.Counter, prev, cur uint64) {
	// totals restart with a new session
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// EventCount returns the current value of the event counter for kind and path.
func (m *SyncMetrics) EventCount(kind, path string) float64 {
	metric := &dto.Metric{}
	if err := m.EventsTotal.WithLabelValues(kind, path).Write(metric); err != nil {
		log.Warn("failed to read event counter", logger.Error(err))
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}

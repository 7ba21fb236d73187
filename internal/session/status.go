package session

import (
	"time"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/synccore"
)

// PathStatus describes one output path.
type PathStatus struct {
	Path          string  `json:"path"`
	Active        bool    `json:"active"`
	Device        string  `json:"device,omitempty"`
	DelayMs       int     `json:"delay_ms"`
	Volume        float64 `json:"volume"`
	Channel       string  `json:"channel"`
	LowPassHz     int     `json:"lowpass_hz"`
	HighPassHz    int     `json:"highpass_hz"`
	BufferedMs    float64 `json:"buffered_ms"`
	TargetDelayMs float64 `json:"target_delay_ms"`
	BufferFill    float64 `json:"buffer_fill"`

	CaptureDroppedFrames uint64 `json:"capture_dropped_frames"`
	SkippedFrames        uint64 `json:"skipped_frames"`
	PaddedFrames         uint64 `json:"padded_frames"`
	Callbacks            uint64 `json:"callbacks"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	SessionID     string       `json:"session_id,omitempty"`
	State         State        `json:"state"`
	Routing       string       `json:"routing"`
	Backend       string       `json:"backend"`
	SampleRate    int          `json:"sample_rate"`
	Channels      int          `json:"channels"`
	Input         string       `json:"input,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	Uptime        string       `json:"uptime,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	EventsDropped uint64       `json:"events_dropped"`
	Paths         []PathStatus `json:"paths"`
}

// EventRecord is a journaled engine event.
type EventRecord struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Path      string    `json:"path"`
	Stage     string    `json:"stage,omitempty"`
	Frames    uint32    `json:"frames,omitempty"`
	Requested uint32    `json:"requested,omitempty"`
	CutoffHz  int32     `json:"cutoff_hz,omitempty"`
}

// Status returns the current state of the controller and both paths.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.settings
	st := Status{
		State:         c.state,
		Routing:       s.Engine.Routing,
		Backend:       s.Audio.Backend,
		SampleRate:    s.Audio.SampleRate,
		Channels:      s.Audio.Channels,
		EventsDropped: c.sink.Dropped(),
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}

	var snap synccore.Snapshot
	as := c.active
	if as != nil {
		snap = as.sess.Snapshot()
		started := as.startedAt
		st.SessionID = as.id
		st.Input = as.input
		st.StartedAt = &started
		st.Uptime = time.Since(started).Truncate(time.Second).String()
		st.Routing = snap.Mode.String()
	}

	for _, p := range []synccore.Path{synccore.PathA, synccore.PathB} {
		st.Paths = append(st.Paths, pathStatus(p, pathSettings(s, p), as, snap))
	}
	return st
}

func pathStatus(p synccore.Path, ps *conf.PathSettings, as *activeSession, snap synccore.Snapshot) PathStatus {
	out := PathStatus{
		Path:       p.String(),
		DelayMs:    ps.DelayMs,
		Volume:     ps.Volume,
		Channel:    ps.Channel,
		LowPassHz:  ps.LowPassHz,
		HighPassHz: ps.HighPassHz,
	}
	if out.Channel == "" {
		out.Channel = synccore.ChannelBoth.String()
	}
	if as == nil {
		return out
	}
	live, ok := snap.Path(p)
	if !ok {
		return out
	}
	out.Active = true
	out.Device = as.outputs[p]
	out.BufferedMs = live.BufferedMilliseconds(snap.SampleRate)
	out.TargetDelayMs = synccore.FramesToMilliseconds(live.TargetDelayFrames, snap.SampleRate)
	if live.CapacityFrames > 0 {
		out.BufferFill = float64(live.BufferedFrames) / float64(live.CapacityFrames)
	}
	out.CaptureDroppedFrames = live.CaptureDropped
	out.SkippedFrames = live.SkippedFrames
	out.PaddedFrames = live.PaddedFrames
	out.Callbacks = live.Callbacks
	return out
}

// RecentEvents returns up to n journaled engine events, oldest first.
func (c *Controller) RecentEvents(n int) []EventRecord {
	records := c.reporter.Journal().Recent(n)
	out := make([]EventRecord, 0, len(records))
	for _, r := range records {
		out = append(out, EventRecord{
			Time:      r.Time,
			Kind:      r.Event.Kind.String(),
			Path:      r.Event.Path.String(),
			Stage:     r.Event.Stage.String(),
			Frames:    r.Event.Frames,
			Requested: r.Event.Requested,
			CutoffHz:  r.Event.CutoffHz,
		})
	}
	return out
}

// EventCount returns how many events of kind the reporter has handled.
func (c *Controller) EventCount(kind synccore.EventKind) uint64 {
	return c.reporter.Count(kind)
}

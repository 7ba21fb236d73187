package synccore

// CaptureRelay copies captured frames into the active path buffers. It runs
// on the capture device thread.
type CaptureRelay struct {
	sc    *StreamContext
	paths []Path
}

func newCaptureRelay(sc *StreamContext) *CaptureRelay {
	return &CaptureRelay{sc: sc, paths: sc.activePaths()}
}

// Process writes frames interleaved samples from in to every active path.
// Each path is written independently; a full buffer on one path drops frames
// on that path only.
func (r *CaptureRelay) Process(in []float32, frames uint32) {
	ch := r.sc.channels
	n := min(int(frames), len(in)/ch)
	if n == 0 {
		return
	}
	samples := in[:n*ch]

	for _, p := range r.paths {
		written := r.sc.buffers[p].Write(samples)
		if written == n {
			continue
		}
		dropped := uint32(n - written)
		r.sc.counters[p].captureDropped.Add(uint64(dropped))
		r.sc.sink.Emit(Event{
			Kind:      EventCaptureDrop,
			Path:      p,
			Frames:    dropped,
			Requested: uint32(n),
		})
	}
}

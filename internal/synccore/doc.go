// Package synccore is the real-time synchronization engine.
//
// One capture callback feeds one or two playback paths through lock-free ring
// buffers. Each playback path corrects drift against its target delay, pads
// underruns with silence and runs a per-path effects chain (volume, channel
// routing, low-pass and high-pass filtering).
//
// Everything reachable from Session.Capture and Session.Playback runs on
// audio device threads: it never blocks, never takes a lock and never
// allocates. Control setters may be called from any goroutine; each control
// value is an independent atomic and the playback thread picks up changes on
// its next callback. Diagnostics leave the audio threads through a Sink.
package synccore

// Package ringbuffer implements a lock-free single-producer single-consumer
// ring buffer of interleaved float32 audio frames.
//
// One goroutine (or audio callback thread) writes, one reads. Both sides work
// through acquire/commit pairs: Acquire returns a contiguous region of the
// backing store, which may be shorter than requested near the wrap point, and
// Commit publishes the frames that were actually used.
package ringbuffer

import (
	"sync/atomic"

	"github.com/syncwave/syncwave/internal/errors"
)

// cacheLinePad keeps the two cursors on separate cache lines.
type cacheLinePad [64]byte

// RingBuffer is a fixed-capacity SPSC frame queue.
type RingBuffer struct {
	data     []float32
	channels uint64
	capacity uint64 // frames

	_     cacheLinePad
	write atomic.Uint64 // monotonic frame cursor, stored only by the writer
	_     cacheLinePad
	read  atomic.Uint64 // monotonic frame cursor, stored only by the reader
	_     cacheLinePad
}

// New allocates a ring buffer holding capacityFrames frames of channels samples each.
func New(channels, capacityFrames int) (*RingBuffer, error) {
	if channels <= 0 {
		return nil, errors.Newf("invalid channel count %d", channels).
			Component("ringbuffer").
			Category(errors.CategoryValidation).
			Context("channels", channels).
			Build()
	}
	if capacityFrames <= 0 {
		return nil, errors.Newf("invalid buffer capacity %d frames", capacityFrames).
			Component("ringbuffer").
			Category(errors.CategoryValidation).
			Context("capacity_frames", capacityFrames).
			Build()
	}

	return &RingBuffer{
		data:     make([]float32, capacityFrames*channels),
		channels: uint64(channels),
		capacity: uint64(capacityFrames),
	}, nil
}

// Channels returns the number of interleaved samples per frame.
func (rb *RingBuffer) Channels() int { return int(rb.channels) }

// Capacity returns the buffer size in frames.
func (rb *RingBuffer) Capacity() int { return int(rb.capacity) }

// AvailableRead returns the number of frames the reader can consume.
func (rb *RingBuffer) AvailableRead() int {
	return int(rb.write.Load() - rb.read.Load())
}

// AvailableWrite returns the number of frames the writer can publish.
func (rb *RingBuffer) AvailableWrite() int {
	return int(rb.capacity - (rb.write.Load() - rb.read.Load()))
}

// region returns the contiguous span starting at cursor limited to n frames.
func (rb *RingBuffer) region(cursor, n uint64) []float32 {
	offset := cursor % rb.capacity
	n = min(n, rb.capacity-offset)
	return rb.data[offset*rb.channels : (offset+n)*rb.channels]
}

// AcquireWrite reserves up to n frames for writing and returns them as a
// sample slice. The slice is empty when the buffer is full. Writer side only.
func (rb *RingBuffer) AcquireWrite(n int) []float32 {
	if n <= 0 {
		return rb.data[:0]
	}
	w := rb.write.Load()
	free := rb.capacity - (w - rb.read.Load())
	return rb.region(w, min(uint64(n), free))
}

// CommitWrite publishes k frames previously obtained from AcquireWrite.
func (rb *RingBuffer) CommitWrite(k int) {
	if k <= 0 {
		return
	}
	rb.write.Add(uint64(k))
}

// AcquireRead returns up to n readable frames as a sample slice. The slice is
// empty when nothing is buffered. Reader side only.
func (rb *RingBuffer) AcquireRead(n int) []float32 {
	if n <= 0 {
		return rb.data[:0]
	}
	r := rb.read.Load()
	avail := rb.write.Load() - r
	return rb.region(r, min(uint64(n), avail))
}

// CommitRead releases k frames previously obtained from AcquireRead.
func (rb *RingBuffer) CommitRead(k int) {
	if k <= 0 {
		return
	}
	rb.read.Add(uint64(k))
}

// Write copies whole frames from src into the buffer and returns the number of
// frames written. Frames that do not fit are dropped.
func (rb *RingBuffer) Write(src []float32) int {
	ch := int(rb.channels)
	remaining := len(src) / ch
	written := 0
	for remaining > 0 {
		dst := rb.AcquireWrite(remaining)
		k := len(dst) / ch
		if k == 0 {
			break
		}
		copy(dst, src[written*ch:(written+k)*ch])
		rb.CommitWrite(k)
		written += k
		remaining -= k
	}
	return written
}

// WriteSilence appends up to n zero frames and returns how many were written.
func (rb *RingBuffer) WriteSilence(n int) int {
	ch := int(rb.channels)
	written := 0
	for written < n {
		dst := rb.AcquireWrite(n - written)
		k := len(dst) / ch
		if k == 0 {
			break
		}
		clear(dst)
		rb.CommitWrite(k)
		written += k
	}
	return written
}

// Read copies up to len(dst)/channels frames into dst and returns the number
// of frames read. The remainder of dst is left untouched.
func (rb *RingBuffer) Read(dst []float32) int {
	ch := int(rb.channels)
	remaining := len(dst) / ch
	read := 0
	for remaining > 0 {
		src := rb.AcquireRead(remaining)
		k := len(src) / ch
		if k == 0 {
			break
		}
		copy(dst[read*ch:(read+k)*ch], src)
		rb.CommitRead(k)
		read += k
		remaining -= k
	}
	return read
}

// Skip discards up to n buffered frames without copying and returns the number discarded.
func (rb *RingBuffer) Skip(n int) int {
	if n <= 0 {
		return 0
	}
	k := min(n, rb.AvailableRead())
	rb.CommitRead(k)
	return k
}

// Reset empties the buffer. It must not run concurrently with either side.
func (rb *RingBuffer) Reset() {
	rb.read.Store(0)
	rb.write.Store(0)
}

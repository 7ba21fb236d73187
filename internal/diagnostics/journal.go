package diagnostics

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/syncwave/syncwave/internal/synccore"
)

// recordSize is the encoded size of one journal entry:
// unix nanos (8) kind (1) path (1) stage (1) pad (1) frames (4) requested (4) cutoff (4).
const recordSize = 24

// Record is one journaled engine event.
type Record struct {
	Time  time.Time
	Event synccore.Event
}

// Journal keeps the most recent engine events in a fixed byte budget. When
// full the oldest records are discarded.
type Journal struct {
	mu      sync.Mutex
	buf     *ringbuffer.RingBuffer
	scratch [recordSize]byte
}

// NewJournal returns a journal holding at most sizeBytes of records, or nil
// when sizeBytes is too small to hold one record.
func NewJournal(sizeBytes int) *Journal {
	records := sizeBytes / recordSize
	if records < 1 {
		return nil
	}
	return &Journal{buf: ringbuffer.New(records * recordSize)}
}

// Capacity returns the number of records the journal can hold.
func (j *Journal) Capacity() int {
	if j == nil {
		return 0
	}
	return j.buf.Capacity() / recordSize
}

// Len returns the number of records held.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buf.Length() / recordSize
}

// Append journals e at time t.
func (j *Journal) Append(t time.Time, e synccore.Event) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.buf.Free() < recordSize {
		if _, err := j.buf.Read(j.scratch[:]); err != nil {
			j.buf.Reset()
			break
		}
	}

	encodeRecord(j.scratch[:], t, e)
	_, _ = j.buf.Write(j.scratch[:])
}

// Recent returns up to n of the newest records, oldest first. n <= 0
// returns everything held.
func (j *Journal) Recent(n int) []Record {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	length := j.buf.Length()
	if length == 0 {
		return nil
	}
	raw := make([]byte, length)
	if _, err := j.buf.Read(raw); err != nil {
		j.buf.Reset()
		return nil
	}
	// put everything back in order
	_, _ = j.buf.Write(raw)

	total := length / recordSize
	start := 0
	if n > 0 && n < total {
		start = total - n
	}
	out := make([]Record, 0, total-start)
	for i := start; i < total; i++ {
		out = append(out, decodeRecord(raw[i*recordSize:(i+1)*recordSize]))
	}
	return out
}

func encodeRecord(b []byte, t time.Time, e synccore.Event) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(t.UnixNano()))
	b[8] = byte(e.Kind)
	b[9] = byte(e.Path)
	b[10] = byte(e.Stage)
	b[11] = 0
	binary.LittleEndian.PutUint32(b[12:16], e.Frames)
	binary.LittleEndian.PutUint32(b[16:20], e.Requested)
	binary.LittleEndian.PutUint32(b[20:24], uint32(e.CutoffHz))
}

func decodeRecord(b []byte) Record {
	return Record{
		Time: time.Unix(0, int64(binary.LittleEndian.Uint64(b[0:8]))),
		Event: synccore.Event{
			Kind:      synccore.EventKind(b[8]),
			Path:      synccore.Path(b[9]),
			Stage:     synccore.FilterStage(b[10]),
			Frames:    binary.LittleEndian.Uint32(b[12:16]),
			Requested: binary.LittleEndian.Uint32(b[16:20]),
			CutoffHz:  int32(binary.LittleEndian.Uint32(b[20:24])),
		},
	}
}

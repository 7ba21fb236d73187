package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// fileBufferSize batches JSON records before they reach the log file.
	fileBufferSize = 32 * 1024

	// DefaultFlushInterval bounds how stale the log file can get while the
	// engine is quiet.
	DefaultFlushInterval = 5 * time.Second
)

var errWriterClosed = errors.New("log writer closed")

// BufferedFileWriter is the append-only sink behind file logging. Writes land
// in a bufio buffer and reach the file on Flush, on Close, or from the
// background flusher when one is running.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	stop chan struct{}
	done chan struct{}
}

// NewBufferedFileWriter opens path for appending. A positive flushEvery starts
// a goroutine that flushes on that period until Close; zero leaves flushing
// to the caller.
func NewBufferedFileWriter(path string, flushEvery time.Duration) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	w := &BufferedFileWriter{
		file: file,
		buf:  bufio.NewWriterSize(file, fileBufferSize),
	}
	if flushEvery > 0 {
		w.stop = make(chan struct{})
		w.done = make(chan struct{})
		go w.runFlusher(flushEvery)
	}
	return w, nil
}

func (w *BufferedFileWriter) runFlusher(period time.Duration) {
	defer close(w.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			// A failed flush leaves the data buffered; the next Write reports it.
			_ = w.Flush()
		}
	}
}

// Write implements io.Writer.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the OS without an fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush log buffer: %w", err)
	}
	return nil
}

// Buffered reports how many bytes are waiting for the next flush.
func (w *BufferedFileWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return 0
	}
	return w.buf.Buffered()
}

// Close stops the flusher, then flushes, syncs and closes the file. Calling
// it again is a no-op.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.buf == nil {
		w.mu.Unlock()
		return nil
	}
	stop := w.stop
	w.stop = nil
	w.mu.Unlock()

	// The flusher takes the lock itself, so it is stopped before we hold it.
	if stop != nil {
		close(stop)
		<-w.done
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return nil
	}
	err := errors.Join(
		w.buf.Flush(),
		w.file.Sync(),
		w.file.Close(),
	)
	w.buf = nil
	w.file = nil
	if err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

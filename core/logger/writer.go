package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter moves formatted lines off the caller's goroutine. Lines are
// fanned out to every sink through one buffer that is flushed whenever the
// queue runs dry.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	buf *bufio.Writer
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		buf:     bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.buf.Flush())
				return
			}
			w.record(w.write(line))
			if len(w.lines) == 0 {
				w.record(w.buf.Flush())
			}
		case ack := <-w.flushes:
			ack <- w.drain()
		}
	}
}

// drain writes whatever is already queued and flushes the buffer.
func (w *asyncWriter) drain() error {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return w.buf.Flush()
			}
			w.record(w.write(line))
		default:
			return w.buf.Flush()
		}
	}
}

func (w *asyncWriter) write(line []byte) error {
	if len(line) == 0 {
		return nil
	}
	_, err := w.buf.Write(line)
	return err
}

// Write queues a copy of p. It blocks while the queue is full so no line is
// dropped, and fails once the writer is closed or a sink has failed.
func (w *asyncWriter) Write(p []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until every queued line has reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return w.failure()
	}
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		if err := <-ack; err != nil {
			return err
		}
	case <-w.done:
	}
	return w.failure()
}

// Close drains the queue and reports the first sink error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.failure()
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) failure() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

package journal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/poiesic/archivist/core"
)

// syncer is implemented by *os.File.
type syncer interface {
	Sync() error
}

// Logger is the only writer of an outcome log. Any number of goroutines may
// call Log; a single background goroutine appends one line per outcome.
// The queue between them is unbounded so producers never wait on disk I/O.
type Logger struct {
	out    io.WriteCloser
	format core.Format
	logger *slog.Logger

	mu      sync.Mutex
	queue   []core.Outcome
	closed  bool
	err     error
	written int

	signal chan struct{}
	done   chan struct{}
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithLogger sets the diagnostic logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) LoggerOption {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// OpenLogger opens path for appending, creating it if needed, and starts the
// writer goroutine.
func OpenLogger(path string, format core.Format, opts ...LoggerOption) (*Logger, error) {
	if format != core.FormatTSV && format != core.FormatNDJSON {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFormat, format)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &core.SerializationError{Err: fmt.Errorf("open outcome log: %w", err)}
	}
	return NewLogger(file, format, opts...), nil
}

// NewLogger starts a Logger writing to out. Close closes out.
func NewLogger(out io.WriteCloser, format core.Format, opts ...LoggerOption) *Logger {
	l := &Logger{
		out:    out,
		format: format,
		logger: slog.Default(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Log queues o for writing. It never blocks on I/O.
func (l *Logger) Log(o core.Outcome) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoggerClosed
	}
	l.queue = append(l.queue, o)
	l.mu.Unlock()

	l.notify()
	return nil
}

func (l *Logger) notify() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Written returns how many lines have reached the log so far.
func (l *Logger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close drains every queued outcome, stops the writer and closes the log.
// It returns the first write error, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return l.firstErr()
	}
	l.closed = true
	l.mu.Unlock()

	l.notify()
	<-l.done

	if err := l.out.Close(); err != nil {
		l.setErr(err)
	}
	return l.firstErr()
}

func (l *Logger) run() {
	defer close(l.done)
	for range l.signal {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		l.writeBatch(batch)

		if closed {
			// Close is set before its final signal, so anything queued
			// earlier was in this batch.
			return
		}
	}
}

func (l *Logger) writeBatch(batch []core.Outcome) {
	if len(batch) == 0 {
		return
	}
	for _, o := range batch {
		line, err := Encode(l.format, o)
		if err != nil {
			l.setErr(err)
			l.logger.Error("failed to encode outcome", "path", o.Path, "err", err)
			continue
		}
		// One write per line keeps every line whole on disk.
		if _, err := l.out.Write(line); err != nil {
			l.setErr(err)
			l.logger.Error("failed to write outcome", "path", o.Path, "err", err)
			continue
		}
		l.mu.Lock()
		l.written++
		l.mu.Unlock()
	}
	if s, ok := l.out.(syncer); ok {
		if err := s.Sync(); err != nil {
			l.logger.Warn("failed to sync outcome log", "err", err)
		}
	}
}

func (l *Logger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = &core.SerializationError{Err: err}
	}
}

func (l *Logger) firstErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

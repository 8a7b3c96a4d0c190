package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how far a run has got: files finished against the
// counted total, throughput, and how many were skipped or failed.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	done           int
	skipped        int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker that writes a status line to writer
// every reportInterval files.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.done, p.skipped, p.failed, p.lastReported = 0, 0, 0, 0
}

// Skip counts a file the previous run already stored.
func (p *ProgressTracker) Skip() {
	p.advance(func() { p.skipped++ })
}

// Done counts an attempted file.
func (p *ProgressTracker) Done(succeeded bool) {
	p.advance(func() {
		if !succeeded {
			p.failed++
		}
	})
}

func (p *ProgressTracker) advance(count func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	count()
	p.done++
	// Files created after the counting pass can push past the total.
	if p.done > p.total {
		p.total = p.done
	}

	if p.done-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.done
	}
}

// Finish writes the final status line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime); elapsed > 0 {
		rate = float64(p.done-p.skipped) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.done) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f files/s, %d skipped, %d failed",
		p.done, p.total, percentage, rate, p.skipped, p.failed)
}

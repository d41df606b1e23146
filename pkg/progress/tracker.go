// Package progress reports how many bytes a run has handled, periodically
// and once more at the end, through a zap logger.
package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often a running Tracker logs.
const DefaultInterval = time.Second

// Tracker counts processed bytes against an expected total. A nil *Tracker
// is valid and discards everything, so callers never need to check.
type Tracker struct {
	total     uint64
	processed atomic.Uint64
	log       *zap.SugaredLogger
	interval  time.Duration

	mu      sync.Mutex
	started time.Time
	done    chan struct{}
	exited  chan struct{}
}

// New returns a stopped tracker expecting total bytes.
func New(total uint64, log *zap.SugaredLogger) *Tracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Tracker{total: total, log: log, interval: DefaultInterval}
}

// SetInterval changes the logging period. It has no effect once started.
func (t *Tracker) SetInterval(d time.Duration) {
	if t == nil || d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		t.interval = d
	}
}

// Start begins periodic logging. Calling Start twice is a no-op.
func (t *Tracker) Start() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}
	t.started = time.Now()
	t.done = make(chan struct{})
	t.exited = make(chan struct{})
	go t.loop(t.done, t.exited)
}

// Stop ends periodic logging and logs a summary line.
func (t *Tracker) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	done, exited := t.done, t.exited
	t.done = nil
	t.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	<-exited
}

// Add records n processed bytes.
func (t *Tracker) Add(n uint64) {
	if t == nil || n == 0 {
		return
	}
	t.processed.Add(n)
}

// Processed returns the bytes recorded so far.
func (t *Tracker) Processed() uint64 {
	if t == nil {
		return 0
	}
	return t.processed.Load()
}

// Total returns the expected byte count.
func (t *Tracker) Total() uint64 {
	if t == nil {
		return 0
	}
	return t.total
}

func (t *Tracker) loop(done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	start := time.Now()
	var prev uint64
	for {
		select {
		case <-ticker.C:
			cur := t.processed.Load()
			rate := uint64(float64(cur-prev) / t.interval.Seconds())
			prev = cur
			t.report(cur, rate)
		case <-done:
			elapsed := time.Since(start).Seconds()
			if elapsed < 0.001 {
				elapsed = 0.001
			}
			cur := t.processed.Load()
			t.log.Infof("processed %s in %.1f seconds (avg rate: %s)",
				formatSize(cur), elapsed, formatRate(uint64(float64(cur)/elapsed)))
			return
		}
	}
}

func (t *Tracker) report(cur, rate uint64) {
	if t.total == 0 {
		t.log.Infof("processed %s | rate: %s", formatSize(cur), formatRate(rate))
		return
	}
	pct := float64(cur) / float64(t.total) * 100
	eta := "calculating..."
	if rate > 0 && cur < t.total {
		eta = formatETA(float64(t.total-cur) / float64(rate))
	}
	t.log.Infof("processed %s of %s (%.1f%%) | rate: %s | eta: %s",
		formatSize(cur), formatSize(t.total), pct, formatRate(rate), eta)
}

func formatETA(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.0f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

// formatSize returns a human-readable size string
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatRate(bytesPerSec uint64) string {
	return formatSize(bytesPerSec) + "/s"
}

// Writer counts bytes written through W against T.
type Writer struct {
	W io.Writer
	T *Tracker
}

// Write implements io.Writer.
func (pw *Writer) Write(p []byte) (n int, err error) {
	n, err = pw.W.Write(p)
	if n > 0 {
		pw.T.Add(uint64(n))
	}
	return
}

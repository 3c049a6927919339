package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalJobs is the number of yearly jobs in the run.
	TotalJobs int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to print a status line.
	// Default: 30s
	UpdateInterval time.Duration

	// Dataset is the dataset being downloaded (for display).
	Dataset string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu            sync.Mutex
	bytesWritten  atomic.Int64
	completedJobs atomic.Int32
	failedJobs    atomic.Int32
	inProgress    atomic.Int32
	startTime     time.Time
	stopCh        chan struct{}
	doneCh        chan struct{}
	started       bool
	stopped       bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 30 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic status output.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[cdsfetch] Downloading: %s\n", r.opts.Dataset)
	fmt.Fprintf(r.opts.Output, "[cdsfetch] Jobs: %d | Workers: %d\n", r.opts.TotalJobs, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status.
// It waits until the final status has been written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// JobStarted marks a job as in progress.
func (r *Reporter) JobStarted() {
	r.inProgress.Add(1)
}

// JobCompleted marks a job as completed with size bytes written.
func (r *Reporter) JobCompleted(size int64) {
	r.bytesWritten.Add(size)
	r.completedJobs.Add(1)
	r.inProgress.Add(-1)
}

// JobFailed marks a job as failed (removes it from in-progress).
func (r *Reporter) JobFailed() {
	r.failedJobs.Add(1)
	r.inProgress.Add(-1)
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	completed := int(r.completedJobs.Load())
	failed := int(r.failedJobs.Load())
	inProgress := int(r.inProgress.Load())

	pending := r.opts.TotalJobs - completed - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "[cdsfetch] Jobs: %d completed | %d failed | %d in-progress | %d pending | %s written | elapsed %s\n",
		completed,
		failed,
		inProgress,
		pending,
		formatBytes(r.bytesWritten.Load()),
		formatDuration(time.Since(r.startTime)),
	)
}

func (r *Reporter) printFinalStatus() {
	written := r.bytesWritten.Load()
	duration := time.Since(r.startTime)
	var avgSpeed float64
	if s := duration.Seconds(); s > 0 {
		avgSpeed = float64(written) / s
	}

	fmt.Fprintf(r.opts.Output, "[cdsfetch] Jobs: %d completed | %d failed of %d\n",
		r.completedJobs.Load(),
		r.failedJobs.Load(),
		r.opts.TotalJobs,
	)
	fmt.Fprintf(r.opts.Output, "[cdsfetch] Total time: %s | Written: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(written),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

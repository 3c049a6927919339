package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the update loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{256 * 1024 * 1024, "256.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 7*time.Minute + 9*time.Second, "2h 7m 9s"},
	}

	for _, tt := range tests {
		if result := FormatDuration(tt.input); result != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestReporterJobTracking(t *testing.T) {
	reporter := NewReporter(Options{
		TotalJobs: 3,
		Workers:   2,
	})

	// Track jobs without starting the reporter
	reporter.JobStarted()
	if reporter.inProgress.Load() != 1 {
		t.Errorf("expected 1 in-progress, got %d", reporter.inProgress.Load())
	}

	reporter.JobCompleted(256)
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after complete, got %d", reporter.inProgress.Load())
	}
	if reporter.completedJobs.Load() != 1 {
		t.Errorf("expected 1 completed, got %d", reporter.completedJobs.Load())
	}
	if reporter.bytesWritten.Load() != 256 {
		t.Errorf("expected 256 bytes, got %d", reporter.bytesWritten.Load())
	}

	reporter.JobStarted()
	reporter.JobFailed()
	if reporter.inProgress.Load() != 0 {
		t.Errorf("expected 0 in-progress after fail, got %d", reporter.inProgress.Load())
	}
	if reporter.failedJobs.Load() != 1 {
		t.Errorf("expected 1 failed, got %d", reporter.failedJobs.Load())
	}
}

func TestReporterStartStop(t *testing.T) {
	out := &syncBuffer{}
	reporter := NewReporter(Options{
		TotalJobs:      2,
		Workers:        2,
		Output:         out,
		UpdateInterval: 10 * time.Millisecond,
		Dataset:        "sis-agrometeorological-indicators",
	})

	reporter.Start()

	reporter.JobStarted()
	reporter.JobCompleted(1024)
	reporter.JobStarted()
	reporter.JobFailed()

	time.Sleep(50 * time.Millisecond) // Let updates run

	reporter.Stop()
	reporter.Stop() // second Stop is a no-op

	s := out.String()
	if !strings.Contains(s, "Downloading: sis-agrometeorological-indicators") {
		t.Errorf("expected header, got %q", s)
	}
	if !strings.Contains(s, "1 completed | 1 failed of 2") {
		t.Errorf("expected final status, got %q", s)
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	reporter := NewReporter(Options{TotalJobs: 1})
	reporter.Stop()
}

package fetch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/ligustah/cdsfetch/internal/cds"
	"github.com/ligustah/cdsfetch/internal/jobs"
	"github.com/ligustah/cdsfetch/internal/output"
	"github.com/ligustah/cdsfetch/internal/pool"
	"github.com/ligustah/cdsfetch/internal/progress"
	"github.com/ligustah/cdsfetch/internal/testutils"
)

const testDataset = "sis-agrometeorological-indicators"

func newFetcher(t *testing.T, fake *testutils.FakeCDS, bucket *blob.Bucket, clients *atomic.Int32) *Fetcher {
	t.Helper()

	opts := cds.DefaultOptions()
	opts.PollInterval = time.Millisecond
	opts.MaxPollInterval = 5 * time.Millisecond
	creds := cds.Credentials{URL: fake.URL(), Key: testutils.FakeKey}

	return &Fetcher{
		Dataset:  testDataset,
		Template: cds.DefaultTemplate(),
		Prefix:   "AgERA5",
		Ext:      "tar.gz",
		Bucket:   bucket,
		NewClient: func() Retriever {
			if clients != nil {
				clients.Add(1)
			}
			return cds.NewClient(creds, opts)
		},
	}
}

func memBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func TestFetchWritesArchive(t *testing.T) {
	ctx := context.Background()
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{Polls: 2})
	bucket := memBucket(t)

	f := newFetcher(t, fake, bucket, nil)
	if err := f.Fetch(ctx, jobs.Job{Year: 1990}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "AgERA5_1990.tar.gz")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, fake.Archive("1990")) {
		t.Error("archive content mismatch")
	}
}

func TestFetchFailureLeavesNoArtifact(t *testing.T) {
	ctx := context.Background()
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{
		Fail: map[string]string{"1991": "simulated remote failure"},
	})
	bucket := memBucket(t)

	err := newFetcher(t, fake, bucket, nil).Fetch(ctx, jobs.Job{Year: 1991})

	var te *cds.TaskError
	if !errors.As(err, &te) {
		t.Fatalf("expected TaskError, got %v", err)
	}

	exists, err := bucket.Exists(ctx, "AgERA5_1991.tar.gz")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected no artifact after a failed retrieval")
	}
}

func TestFetchShortBodyLeavesNoArtifact(t *testing.T) {
	ctx := context.Background()
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{Truncate: true})
	bucket := memBucket(t)

	err := newFetcher(t, fake, bucket, nil).Fetch(ctx, jobs.Job{Year: 1990})
	if !errors.Is(err, cds.ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}

	exists, err := bucket.Exists(ctx, "AgERA5_1990.tar.gz")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected no artifact after a short download")
	}
}

func TestFetchOverwrites(t *testing.T) {
	ctx := context.Background()
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{})
	bucket := memBucket(t)

	if err := bucket.WriteAll(ctx, "AgERA5_1990.tar.gz", []byte("stale"), nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	if err := newFetcher(t, fake, bucket, nil).Fetch(ctx, jobs.Job{Year: 1990}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "AgERA5_1990.tar.gz")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, fake.Archive("1990")) {
		t.Error("expected the stale archive to be replaced")
	}
}

func TestFetchReportsProgress(t *testing.T) {
	ctx := context.Background()
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{
		Fail: map[string]string{"1991": "nope"},
	})

	f := newFetcher(t, fake, memBucket(t), nil)
	var out bytes.Buffer
	f.Progress = progress.NewReporter(progress.Options{TotalJobs: 2, Output: &out})

	f.Fetch(ctx, jobs.Job{Year: 1990})
	f.Fetch(ctx, jobs.Job{Year: 1991})

	f.Progress.Start()
	f.Progress.Stop()
	if !bytes.Contains(out.Bytes(), []byte("1 completed | 1 failed of 2")) {
		t.Errorf("unexpected progress output %q", out.String())
	}
}

func TestTasksPreserveOrder(t *testing.T) {
	f := &Fetcher{Prefix: "AgERA5", Ext: "tar.gz"}
	tasks := f.Tasks(jobs.Enumerate(1990, 1992))

	want := []string{"1990", "1991", "1992"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, name := range want {
		if tasks[i].Name != name {
			t.Errorf("task %d: expected %s, got %s", i, name, tasks[i].Name)
		}
	}
}

func TestUnconfiguredFetcher(t *testing.T) {
	if err := (&Fetcher{}).Fetch(context.Background(), jobs.Job{Year: 1990}); err == nil {
		t.Error("expected error for unconfigured fetcher")
	}
}

// runYears drives the full enumerate, pool, fetch path into a local directory.
func runYears(t *testing.T, fake *testutils.FakeCDS, dir string, clients *atomic.Int32) (*pool.Report, error) {
	t.Helper()
	ctx := context.Background()

	bucket, err := output.Open(ctx, dir)
	if err != nil {
		t.Fatalf("output.Open: %v", err)
	}
	defer bucket.Close()

	p, err := pool.New(ctx, pool.Options{Workers: 2, ReadyTimeout: time.Second})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}

	f := newFetcher(t, fake, bucket, clients)
	return p.SubmitAll(ctx, f.Tasks(jobs.Enumerate(1990, 1992)))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestEndToEndThreeYears(t *testing.T) {
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{Polls: 1})
	dir := t.TempDir()

	var clients atomic.Int32
	if _, err := runYears(t, fake, dir, &clients); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"AgERA5_1990.tar.gz", "AgERA5_1991.tar.gz", "AgERA5_1992.tar.gz"}
	got := dirNames(t, dir)
	if len(got) != len(want) {
		t.Fatalf("expected files %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %s, got %s", want[i], got[i])
		}
	}
	if clients.Load() != 3 {
		t.Errorf("expected a fresh client per job (3), got %d", clients.Load())
	}

	// Rerunning overwrites the same paths.
	if _, err := runYears(t, fake, dir, nil); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again := dirNames(t, dir); len(again) != len(want) {
		t.Errorf("expected rerun to keep %d files, got %v", len(want), again)
	}
}

func TestEndToEndOneYearFails(t *testing.T) {
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{
		Fail: map[string]string{"1991": "simulated remote-service error"},
	})
	dir := t.TempDir()

	report, err := runYears(t, fake, dir, nil)

	var je *pool.JobsError
	if !errors.As(err, &je) {
		t.Fatalf("expected JobsError, got %v", err)
	}
	if len(je.Failed) != 1 || je.Failed[0].Name != "1991" {
		t.Errorf("expected only 1991 to fail, got %+v", je.Failed)
	}
	if report.Succeeded() != 2 {
		t.Errorf("expected 2 successes, got %d", report.Succeeded())
	}

	got := dirNames(t, dir)
	want := []string{"AgERA5_1990.tar.gz", "AgERA5_1992.tar.gz"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected files %v, got %v", want, got)
	}
}

func TestJobTimeoutDuringDownloadLeavesNothing(t *testing.T) {
	fake := testutils.StartFakeCDS(t, testutils.FakeCDSOptions{Delay: 5 * time.Second})
	dir := t.TempDir()
	ctx := context.Background()

	bucket, err := output.Open(ctx, dir)
	if err != nil {
		t.Fatalf("output.Open: %v", err)
	}
	defer bucket.Close()

	p, err := pool.New(ctx, pool.Options{
		Workers:      1,
		ReadyTimeout: time.Second,
		JobTimeout:   100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}

	f := newFetcher(t, fake, bucket, nil)
	report, err := p.SubmitAll(ctx, f.Tasks(jobs.Enumerate(1990, 1990)))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if report.Results[0].Skipped {
		t.Error("expected the job to have run")
	}

	// The aborted fileblob write must not leave its temp file behind.
	if names := dirNames(t, dir); len(names) != 0 {
		t.Errorf("expected an empty output directory, got %v", names)
	}
}

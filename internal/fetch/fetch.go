// Package fetch turns yearly jobs into pool tasks that retrieve one archive
// from the CDS and store it in the output bucket.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"

	"github.com/ligustah/cdsfetch/internal/cds"
	"github.com/ligustah/cdsfetch/internal/jobs"
	"github.com/ligustah/cdsfetch/internal/pool"
	"github.com/ligustah/cdsfetch/internal/progress"
)

// Retriever issues one retrieval and streams the result to w.
type Retriever interface {
	Retrieve(ctx context.Context, dataset string, req cds.Request, w io.Writer) (int64, error)
}

// Fetcher downloads yearly archives.
type Fetcher struct {
	// Dataset is the CDS dataset name.
	Dataset string

	// Template is the request sent for every year; only Year differs.
	Template cds.Request

	// Prefix and Ext form the artifact name <Prefix>_<year>.<Ext>.
	Prefix string
	Ext    string

	// Bucket receives the archives.
	Bucket *blob.Bucket

	// NewClient returns a fresh connection to the service. It is called
	// once per job.
	NewClient func() Retriever

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// ArtifactName returns the object name for a job.
func (f *Fetcher) ArtifactName(job jobs.Job) string {
	return jobs.ArtifactName(f.Prefix, job.Year, f.Ext)
}

// Task returns the unit of work for a single year.
func (f *Fetcher) Task(job jobs.Job) pool.Task {
	return pool.Task{
		Name: job.String(),
		Run: func(ctx context.Context) error {
			return f.Fetch(ctx, job)
		},
	}
}

// Tasks maps Task over a job list, preserving order.
func (f *Fetcher) Tasks(list []jobs.Job) []pool.Task {
	tasks := make([]pool.Task, len(list))
	for i, job := range list {
		tasks[i] = f.Task(job)
	}
	return tasks
}

// Fetch retrieves the archive for job and writes it to the bucket,
// replacing any previous archive for that year. When the retrieval fails
// the write is aborted and no artifact is left behind.
func (f *Fetcher) Fetch(ctx context.Context, job jobs.Job) error {
	if f.Progress != nil {
		f.Progress.JobStarted()
	}

	n, err := f.fetch(ctx, job)
	if err != nil {
		if f.Progress != nil {
			f.Progress.JobFailed()
		}
		return fmt.Errorf("year %d: %w", job.Year, err)
	}

	if f.Progress != nil {
		f.Progress.JobCompleted(n)
	}
	return nil
}

func (f *Fetcher) fetch(ctx context.Context, job jobs.Job) (int64, error) {
	if f.NewClient == nil || f.Bucket == nil {
		return 0, errors.New("fetch: fetcher is not configured")
	}
	client := f.NewClient()
	key := f.ArtifactName(job)

	// Cancelling writeCtx before Close discards the object.
	writeCtx, abort := context.WithCancel(ctx)
	defer abort()

	w, err := f.Bucket.NewWriter(writeCtx, key, &blob.WriterOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", key, err)
	}

	n, err := client.Retrieve(ctx, f.Dataset, f.Template.WithYear(job.String()), w)
	if err != nil {
		abort()
		w.Close()
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("write %s: %w", key, err)
	}
	return n, nil
}

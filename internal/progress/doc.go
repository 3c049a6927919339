// Package progress provides progress reporting for a download run.
//
// The reporter prints a status line at a fixed interval. Lines are plain
// (no cursor movement) so they read well in batch-scheduler log files.
//
// # Usage
//
//	reporter := progress.NewReporter(Options{
//	    TotalJobs: len(jobs),
//	    Workers:   10,
//	    Dataset:   "sis-agrometeorological-indicators",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.JobStarted()
//	reporter.JobCompleted(bytesWritten)
//
// # Output Format
//
//	[cdsfetch] Downloading: sis-agrometeorological-indicators
//	[cdsfetch] Jobs: 10 | Workers: 10
//	[cdsfetch] Jobs: 4 completed | 0 failed | 6 in-progress | 0 pending | 1.12 GB written | elapsed 18m 32s
package progress

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"

	"github.com/ligustah/cdsfetch/internal/cds"
	"github.com/ligustah/cdsfetch/internal/config"
	"github.com/ligustah/cdsfetch/internal/fetch"
	"github.com/ligustah/cdsfetch/internal/jobs"
	"github.com/ligustah/cdsfetch/internal/logger"
	"github.com/ligustah/cdsfetch/internal/output"
	"github.com/ligustah/cdsfetch/internal/pool"
	"github.com/ligustah/cdsfetch/internal/progress"
)

// workerInit runs on every pool worker before it reports ready.
var workerInit func(ctx context.Context, worker int) error

func runDownload(stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "\n[cdsfetch] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return download(ctx, cfg, stderr)
}

// loadConfig reads CDSFETCH_CONFIG (if set), applies the environment and
// validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if path := os.Getenv("CDSFETCH_CONFIG"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func download(ctx context.Context, cfg config.Config, stderr io.Writer) int {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(stderr, level)

	creds, err := cds.LoadCredentials(cfg.Credentials)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading CDS credentials: %v\n", err)
		return ExitInvalidArgs
	}

	bucket, err := output.Open(ctx, cfg.OutputDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening output: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	runID := uuid.NewString()
	list := jobs.Enumerate(cfg.YearFirst, cfg.YearLast)
	log.Info("run %s: %s %d-%d (%d years) -> %s", runID, cfg.Dataset, cfg.YearFirst, cfg.YearLast, len(list), cfg.OutputDir)

	p, err := pool.New(ctx, pool.Options{
		Workers:      cfg.Workers,
		ReadyTimeout: cfg.ReadyTimeout,
		JobTimeout:   cfg.JobTimeout,
		Init:         workerInit,
		Logger:       log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error starting worker pool: %v\n", err)
		var re *pool.ReadinessError
		if errors.As(err, &re) {
			return ExitPoolNotReady
		}
		return ExitGeneralError
	}

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalJobs:      len(list),
			Workers:        cfg.Workers,
			Output:         stderr,
			UpdateInterval: cfg.ProgressInterval,
			Dataset:        cfg.Dataset,
		})
		reporter.Start()
	}

	apiOpts := cds.Options{
		Timeout:         cfg.API.Timeout,
		PollInterval:    cfg.API.PollInterval,
		MaxPollInterval: cfg.API.MaxPollInterval,
		RequestID:       runID,
		Logger:          log,
	}
	f := &fetch.Fetcher{
		Dataset:  cfg.Dataset,
		Template: cfg.Template(),
		Prefix:   cfg.Prefix,
		Ext:      cfg.Ext,
		Bucket:   bucket,
		NewClient: func() fetch.Retriever {
			return cds.NewClient(creds, apiOpts)
		},
		Progress: reporter,
	}

	report, err := p.SubmitAll(ctx, f.Tasks(list))
	if reporter != nil {
		reporter.Stop()
	}
	if report != nil {
		printSummary(ctx, stderr, bucket, f, list, report)
	}

	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "[cdsfetch] Run interrupted")
		return ExitGeneralError
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitJobsFailed
	}
	return ExitSuccess
}

// printSummary writes one line per year followed by the totals.
func printSummary(ctx context.Context, w io.Writer, bucket *blob.Bucket, f *fetch.Fetcher, list []jobs.Job, report *pool.Report) {
	// Stat must work even after an interrupt.
	ctx = context.WithoutCancel(ctx)

	fmt.Fprintln(w, "[cdsfetch] Summary:")
	for i, res := range report.Results {
		key := f.ArtifactName(list[i])
		switch {
		case res.Skipped:
			fmt.Fprintf(w, "  %s  SKIPPED  %v\n", res.Name, res.Err)
		case !res.OK():
			fmt.Fprintf(w, "  %s  FAILED   %v\n", res.Name, res.Err)
		default:
			size, err := output.Stat(ctx, bucket, key)
			if err != nil {
				fmt.Fprintf(w, "  %s  ok       %s (stat failed: %v)\n", res.Name, key, err)
				continue
			}
			fmt.Fprintf(w, "  %s  ok       %s  %s  %s\n", res.Name, key,
				progress.FormatBytes(size), progress.FormatDuration(res.Duration.Round(time.Second)))
		}
	}
	fmt.Fprintf(w, "[cdsfetch] %d/%d years downloaded in %s\n",
		report.Succeeded(), len(report.Results), progress.FormatDuration(report.Duration))
}

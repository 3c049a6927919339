//go:build integration

package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/ligustah/cdsfetch/internal/testutils"
)

func TestCLIIntegrationS3Output(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "agera5")

	fake, _ := setupRun(t, testutils.FakeCDSOptions{
		Polls: 2,
		Fail:  map[string]string{"1991": "simulated remote-service error"},
	})
	t.Setenv("CDSFETCH_OUTPUT_DIR", minio.BucketURL)

	var stderr bytes.Buffer
	if code := run(nil, &stderr); code != ExitJobsFailed {
		t.Fatalf("expected exit %d, got %d\n%s", ExitJobsFailed, code, stderr.String())
	}

	bucket, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	for _, year := range []string{"1990", "1992"} {
		got, err := bucket.ReadAll(ctx, "AgERA5_"+year+".tar.gz")
		if err != nil {
			t.Fatalf("read %s: %v", year, err)
		}
		if !bytes.Equal(got, fake.Archive(year)) {
			t.Errorf("archive %s content mismatch", year)
		}
	}

	exists, err := bucket.Exists(ctx, "AgERA5_1991.tar.gz")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected no archive for the failed year")
	}

	// A rerun overwrites the same keys.
	t.Setenv("CDSFETCH_YEAR_FIRST", "1990")
	t.Setenv("CDSFETCH_YEAR_LAST", "1990")
	if code := run(nil, &stderr); code != ExitSuccess {
		t.Fatalf("rerun: expected exit %d, got %d", ExitSuccess, code)
	}

	iter := bucket.List(nil)
	count := 0
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		t.Logf("object %s (%d bytes)", obj.Key, obj.Size)
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 objects, got %d", count)
	}
}

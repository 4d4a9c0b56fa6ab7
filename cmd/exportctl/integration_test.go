//go:build integration

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ligustah/exportctl/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	clearEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	data := []byte(strings.Repeat("exported page\n", 10_000))
	fake := testutils.NewFakeService(data)
	defer fake.Close()

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "exports-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	code, stdout, stderr := execute(t, "run",
		"--host", fake.URL(),
		"-r", "rep",
		"--token", "t",
		"-n", "4",
		"--concurrency", "2",
		"-o", minio.BucketURL,
		"--time-unit", "10ms",
	)
	if code != ExitSuccess {
		t.Fatalf("run failed with exit code %d\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}

	bucket, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bucket.Close()

	iter := bucket.List(nil)
	var objects int
	for {
		obj, err := iter.Next(ctx)
		if err != nil {
			break
		}
		if !strings.HasPrefix(obj.Key, "export_rep_") {
			t.Errorf("unexpected object %s", obj.Key)
		}
		if obj.Size != int64(len(data)) {
			t.Errorf("object %s has %d bytes, want %d", obj.Key, obj.Size, len(data))
		}
		objects++
	}
	if objects != 4 {
		t.Errorf("expected 4 objects, got %d", objects)
	}
	if !strings.Contains(stdout, "s3://exports-test-bucket/export_rep_") {
		t.Errorf("expected bucket locations in summary, got:\n%s", stdout)
	}
}

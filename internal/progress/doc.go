// Package progress provides periodic progress reporting for export runs.
//
// This package outputs human-readable aggregate progress to an io.Writer:
// how many export jobs have succeeded, failed, are in flight or still
// queued, and how many artifact bytes have been downloaded.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalJobs: 20,
//	    Workers:   4,
//	    Output:    os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.JobStarted()
//	reporter.JobSucceeded(artifactBytes)
//
// # Output Format
//
//	[exportctl] Exporting report 2b8e... (run 5f0c1a2b)
//	[exportctl] Jobs: 20 | Workers: 4
//	[exportctl] Progress: 45.0% | 9 succeeded | 0 failed | 4 in-flight | 7 pending | 1.20 MB downloaded
package progress

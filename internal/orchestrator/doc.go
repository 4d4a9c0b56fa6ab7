// Package orchestrator runs a fixed number of independent export jobs on a
// bounded worker pool and collects their terminal outcomes.
//
// Jobs are numbered 1..N and handed to Workers goroutines over a channel.
// Each worker runs one job to completion before taking the next. A failed
// job never cancels its siblings; Run returns only after every job has
// reached Succeeded or Failed.
//
// # Usage
//
//	res := orchestrator.Run(ctx, orchestrator.Options{
//	    Jobs:    20,
//	    Workers: 4,
//	    Request: req,
//	}, runner)
//
//	if err := res.Err(); err != nil {
//	    // one wrapped error per failed job
//	}
package orchestrator

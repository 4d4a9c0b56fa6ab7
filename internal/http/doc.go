// Package http provides the shared HTTP transport used by every export job.
//
// This package handles:
//   - Connection pooling shared by all workers
//   - Transparent absorption of 429 rate limiting (Retry-After or exponential backoff)
//   - Optional client-side request pacing
//   - Distinguishing transport faults from non-success status codes
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//	defer client.Close()
//
//	resp, err := client.Do(ctx, http.Request{
//	    Method: "GET",
//	    URL:    statusURL,
//	    Header: header,
//	})
//	if err != nil {
//	    // *TransportError: no response was received
//	}
//	defer resp.Close()
//
// # Rate limiting
//
// A 429 response is never returned to the caller. Do sleeps for the
// Retry-After hint when present, otherwise for RetryBackoff doubled on each
// consecutive throttle up to RetryMaxBackoff, and then repeats the request.
// There is no attempt limit; only context cancellation ends the loop. A
// Retry-After value too large to represent is ignored.
//
// # Streaming
//
// With Request.Stream set, the body of the returned Response is left open and
// must be released with Response.Close. Closing before EOF reads only a small
// bounded remainder and otherwise drops the connection. Buffered responses are
// read fully and their connection is released before Do returns.
package http

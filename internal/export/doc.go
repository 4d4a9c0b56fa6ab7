// Package export drives a single asynchronous report export from submission
// to a terminal outcome.
//
// A [Runner] holds the read-only collaborators shared by every job (HTTP
// client, token provider, host, sink, tracer). Each call to [Runner.Run]
// creates a [Job] whose [State] is owned by the calling goroutine alone.
//
// # Lifecycle
//
//	Created -> Submitting -> Polling -> Downloading -> Succeeded
//	                 |           |            |
//	                 +-----------+------------+--> Failed
//
// Polling loops on itself while the service reports a non-terminal status.
// Download is attempted only when the terminal status is Succeeded and the
// response carrying it was HTTP 200.
//
// # Endpoints
//
//	POST {host}/v1.0/myorg/[groups/{workspace}/]reports/{report}/ExportTo
//	GET  {host}/v1.0/myorg/[groups/{workspace}/]reports/{report}/exports/{id}
//	GET  {resourceLocation}
package export

// Package relay turns caller requests into single upstream daemon calls and hands
// the results back to the HTTP layer. It is organized by concern:
//
//   - service.go: Service, its Options and the three operations (ListModels,
//     DeleteModel, OpenChat) plus the readiness probe.
//   - stream.go: ChatStream, the bounded-buffer pump that copies the upstream
//     generation body to the caller chunk by chunk.
//   - errors.go: request validation errors (IsInvalidRequest).
//   - metrics.go: Prometheus collectors for relayed streams.
//
// OpenChat decides between streaming and failing before anything is written to the
// caller: it returns either an open ChatStream (upstream answered 2xx) or an error.
// No call is retried. The Service holds no per-request state and is safe for
// concurrent use.
package relay

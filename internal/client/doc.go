// Package client provides the queue and ordering engine: the orchestrator
// that owns the shared layer for one instance. It is structured into small
// files by concern:
//
//   - client.go: core Client type, constructor, lifecycle (Init/Teardown),
//     consent entry points, readiness delegation, diagnostics.
//   - queue.go: holding-queue discipline, dedup rules, size-bounded eviction.
//   - config.go: Config and validation/defaults.
//   - errors.go: configuration error types and Is* helpers.
//
// Ordering guarantee: consent commands queued before Init are delivered to
// the layer ahead of every non-consent entry queued after the earliest of
// them, for all interleavings of pre-init calls. Pushes never fail: anything
// that goes wrong on the delivery path is logged and swallowed.
package client

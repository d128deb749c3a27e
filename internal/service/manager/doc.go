// Package manager hosts the update orchestrator and the sidecar entry point.
//
// The orchestrator is the state machine at the heart of the sidecar: it owns
// the single update slot (an in-memory gate plus a persisted lease), runs the
// sync and rebuild phases sequentially in a background task and writes every
// status transition through the record repository. Run wires the orchestrator
// to the HTTP transport and blocks until shutdown.
package manager

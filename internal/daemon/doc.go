// Package daemon coordinates the long-running macroblock process and system
// integration points.
//
// It wires configuration, the detector registry, the analysis engine, history
// storage, and the optional evidence intake monitor into a single lifecycle
// with flock-based locking to prevent multiple instances. The daemon owns the
// HTTP API and emits dependency health summaries for the status surfaces.
//
// Keep orchestration logic here: scoring, aggregation, and detector transport
// live in their respective packages while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon

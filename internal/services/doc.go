// Package services defines shared utilities consumed by the analysis
// pipeline and external detector integrations.
//
// Key responsibilities:
//   - Context helpers that stamp analysis IDs, detector names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent API responses and detector failure records.
//
// Use these helpers when wiring new analysis logic so operational behaviour
// (error handling, observability) stays uniform across the gateway.
package services

// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal analysis models into transport-friendly DTOs
// that the CLI and other consumers can render without coupling to internal
// types.
//
// # Key Types
//
// Report: transport representation of one analysis with its verdict payload,
// reliability flag, and cache provenance.
//
// BatchEntry/BatchResponse: per-file outcomes for batch detection, failures
// carried as messages alongside successful reports.
//
// DetectorStatus/DetectorsResponse: registry health with deterministic
// detector ordering.
//
// HistoryEntry/HistoryResponse/HistorySummary: persisted analyses and their
// aggregate counts.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Converters
//
// FromResult: gateway.Result -> Report with the ensemble or video verdict
// marshalled into the envelope.
//
// FromRegistryHealth: detector.RegistryHealth -> DetectorsResponse with
// name-sorted entries.
//
// FromHistoryRecord: history.Record -> HistoryEntry, model scores passed
// through untouched.
//
// # Design Notes
//
// DTOs use snake_case JSON tags matching the detector-service protocol, so a
// verdict travels unchanged from a model service through the gateway to the
// CLI. Timestamps use RFC3339 with milliseconds. Verdicts and model scores
// are passed through as json.RawMessage to avoid double-encoding.
//
// Verdict summaries are derived from the raw payload rather than stored
// separately, so the API always reflects what the gateway actually produced.
package api

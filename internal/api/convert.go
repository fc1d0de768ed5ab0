package api

import (
	"encoding/json"
	"slices"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/gateway"
	"macroblock/internal/history"
	"macroblock/internal/media"
)

// FromResult converts a gateway analysis to its API representation.
func FromResult(result *gateway.Result) Report {
	if result == nil {
		return Report{}
	}

	dto := Report{
		AnalysisID:    result.ID,
		MediaKind:     result.Kind.String(),
		Filename:      result.Filename,
		SizeBytes:     result.SizeBytes,
		SHA256:        result.SHA256,
		Reliable:      result.Reliable,
		Cached:        result.Cached,
		CacheDistance: result.CacheDistance,
		ElapsedMS:     result.ElapsedMS,
	}
	if !result.CreatedAt.IsZero() {
		dto.CreatedAt = result.CreatedAt.UTC().Format(dateTimeFormat)
	}

	switch {
	case result.Video != nil:
		if raw, err := json.Marshal(result.Video); err == nil {
			dto.Verdict = raw
		}
	case result.Verdict != nil:
		if raw, err := json.Marshal(result.Verdict); err == nil {
			dto.Verdict = raw
		}
	}
	return dto
}

// FromBatchResults converts per-file batch outcomes into API DTOs, one entry
// per upload in order.
func FromBatchResults(results []gateway.BatchResult) BatchResponse {
	out := BatchResponse{Results: make([]BatchEntry, 0, len(results))}
	for _, res := range results {
		entry := BatchEntry{Filename: res.Filename}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else if res.Result != nil {
			report := FromResult(res.Result)
			entry.Report = &report
		}
		out.Results = append(out.Results, entry)
	}
	return out
}

// FromRegistryHealth converts registry health into a deterministic,
// name-sorted detector listing.
func FromRegistryHealth(health detector.RegistryHealth) DetectorsResponse {
	names := make([]string, 0, len(health.Detectors))
	for name := range health.Detectors {
		names = append(names, name)
	}
	slices.Sort(names)

	detectors := make([]DetectorStatus, 0, len(names))
	for _, name := range names {
		h := health.Detectors[name]
		detectors = append(detectors, DetectorStatus{
			Name:     name,
			Modality: h.Modality.String(),
			Loaded:   h.Loaded,
			Device:   h.Device,
			Error:    h.Error,
		})
	}

	return DetectorsResponse{
		RegisteredCount: health.RegisteredCount,
		AllLoaded:       health.AllLoaded,
		Detectors:       detectors,
	}
}

// FromHistoryRecord converts a persisted analysis to its API representation.
func FromHistoryRecord(rec *history.Record) HistoryEntry {
	if rec == nil {
		return HistoryEntry{}
	}

	dto := HistoryEntry{
		AnalysisID:     rec.ID,
		MediaKind:      rec.MediaKind.String(),
		Filename:       rec.Filename,
		SizeBytes:      rec.SizeBytes,
		SHA256:         rec.SHA256,
		IsFake:         rec.IsFake,
		Confidence:     rec.Confidence,
		Method:         rec.Method,
		FramesAnalyzed: rec.FramesAnalyzed,
		ElapsedMS:      rec.ElapsedMS,
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if raw := rec.ModelScoresJSON; raw != "" {
		dto.ModelScores = json.RawMessage(raw)
	}
	return dto
}

// FromHistoryRecords converts a slice of persisted analyses into API DTOs.
func FromHistoryRecords(recs []*history.Record) []HistoryEntry {
	if len(recs) == 0 {
		return nil
	}
	out := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromHistoryRecord(rec))
	}
	return out
}

// FromHistorySummary produces a string-keyed representation of history
// counts.
func FromHistorySummary(summary history.Summary) HistorySummary {
	out := HistorySummary{Total: summary.Total, Fakes: summary.Fakes}
	if len(summary.ByKind) > 0 {
		out.ByKind = MergeKindCounts(summary.ByKind)
	}
	return out
}

// MergeKindCounts produces a string-keyed representation of per-kind counts.
func MergeKindCounts(counts map[media.Kind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for kind, count := range counts {
		out[kind.String()] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

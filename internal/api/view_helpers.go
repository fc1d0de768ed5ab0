package api

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// VerdictSummary holds the verdict fields CLI renderers pull out of a raw
// payload without binding to the full internal verdict types.
type VerdictSummary struct {
	IsFake         bool
	Confidence     float64
	Method         string
	FramesAnalyzed int
	Error          string
}

// SummarizeVerdict extracts the display fields from a verdict payload. An
// empty or unparseable payload yields the zero summary.
func SummarizeVerdict(raw json.RawMessage) VerdictSummary {
	if len(raw) == 0 {
		return VerdictSummary{}
	}
	var fields struct {
		IsFake         bool    `json:"is_fake"`
		Confidence     float64 `json:"confidence"`
		Method         string  `json:"method"`
		FramesAnalyzed int     `json:"frames_analyzed"`
		Error          string  `json:"error"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return VerdictSummary{}
	}
	return VerdictSummary{
		IsFake:         fields.IsFake,
		Confidence:     fields.Confidence,
		Method:         strings.TrimSpace(fields.Method),
		FramesAnalyzed: fields.FramesAnalyzed,
		Error:          strings.TrimSpace(fields.Error),
	}
}

// SortEntriesNewestFirst orders history entries by CreatedAt descending,
// breaking ties by analysis ID descending.
func SortEntriesNewestFirst(entries []HistoryEntry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	sorted := make([]HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		ti := parseReportTime(sorted[i].CreatedAt)
		tj := parseReportTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].AnalysisID > sorted[j].AnalysisID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseReportTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseReportTime exposes report timestamp parsing for consumers that need
// display formatting.
func ParseReportTime(value string) time.Time {
	return parseReportTime(value)
}

package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSummarizeVerdict(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want VerdictSummary
	}{
		{
			name: "ensemble verdict",
			raw:  `{"is_fake":true,"confidence":0.87,"model_scores":{"facecheck":0.87}}`,
			want: VerdictSummary{IsFake: true, Confidence: 0.87},
		},
		{
			name: "video verdict",
			raw:  `{"is_fake":false,"confidence":0.32,"method":"temporal","frames_analyzed":24}`,
			want: VerdictSummary{Confidence: 0.32, Method: "temporal", FramesAnalyzed: 24},
		},
		{
			name: "degraded verdict",
			raw:  `{"is_fake":false,"confidence":0,"error":"no detectors available"}`,
			want: VerdictSummary{Error: "no detectors available"},
		},
		{
			name: "empty payload",
			raw:  "",
			want: VerdictSummary{},
		},
		{
			name: "invalid payload",
			raw:  "{not json",
			want: VerdictSummary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SummarizeVerdict(json.RawMessage(tt.raw))
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestSortEntriesNewestFirst(t *testing.T) {
	entries := []HistoryEntry{
		{AnalysisID: "aaa", CreatedAt: "2026-02-01T08:00:00.000Z"},
		{AnalysisID: "ccc", CreatedAt: "2026-02-03T08:00:00.000Z"},
		{AnalysisID: "bbb", CreatedAt: "2026-02-03T08:00:00.000Z"},
		{AnalysisID: "ddd", CreatedAt: ""},
	}

	sorted := SortEntriesNewestFirst(entries)
	want := []string{"ccc", "bbb", "aaa", "ddd"}
	for i, entry := range sorted {
		if entry.AnalysisID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], entry.AnalysisID)
		}
	}
	if entries[0].AnalysisID != "aaa" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestSortEntriesNewestFirstEmpty(t *testing.T) {
	if got := SortEntriesNewestFirst(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestParseReportTime(t *testing.T) {
	stamp := ParseReportTime("2026-02-14T08:00:00.000Z")
	if stamp.IsZero() {
		t.Fatal("expected API timestamp to parse")
	}
	if !stamp.Equal(time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parse result: %v", stamp)
	}
	if !ParseReportTime("").IsZero() {
		t.Fatal("empty value should parse to zero time")
	}
	if !ParseReportTime("yesterday").IsZero() {
		t.Fatal("garbage should parse to zero time")
	}
}

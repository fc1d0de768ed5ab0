package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"macroblock/internal/api"
	"macroblock/internal/ensemble"
)

func buildHistoryRows(entries []api.HistoryEntry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		verdict := "REAL"
		if entry.IsFake {
			verdict = "FAKE"
		}
		when := "-"
		if t := api.ParseReportTime(entry.CreatedAt); !t.IsZero() {
			when = humanize.Time(t)
		}
		rows = append(rows, []string{
			shortID(entry.AnalysisID),
			entry.Filename,
			displayKind(entry.MediaKind),
			verdict,
			fmt.Sprintf("%.1f%%", entry.Confidence*100),
			when,
		})
	}
	return rows
}

func buildModelScoreRows(raw json.RawMessage) [][]string {
	var scores map[string]ensemble.ModelScore
	if err := json.Unmarshal(raw, &scores); err != nil || len(scores) == 0 {
		return nil
	}
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		entry := scores[name]
		if entry.Err != "" {
			rows = append(rows, []string{name, "-", entry.Err})
			continue
		}
		rows = append(rows, []string{name, fmt.Sprintf("%.3f", entry.FakeProbability), "-"})
	}
	return rows
}

// displayKind title-cases a media kind for table output.
func displayKind(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "-"
	}
	return cases.Title(language.Und).String(kind)
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

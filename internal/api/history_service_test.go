package api

import (
	"context"
	"errors"
	"testing"

	"macroblock/internal/history"
	"macroblock/internal/media"
)

type stubHistoryReader struct {
	recent  []*history.Record
	byID    map[string]*history.Record
	summary history.Summary
	err     error
}

func (s *stubHistoryReader) Recent(ctx context.Context, limit int) ([]*history.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.recent) {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *stubHistoryReader) GetByID(ctx context.Context, id string) (*history.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byID[id], nil
}

func (s *stubHistoryReader) Stats(ctx context.Context) (history.Summary, error) {
	if s.err != nil {
		return history.Summary{}, s.err
	}
	return s.summary, nil
}

func TestHistoryServiceRecent(t *testing.T) {
	reader := &stubHistoryReader{
		recent: []*history.Record{
			{ID: "one", MediaKind: media.KindImage, Filename: "a.png", Confidence: 0.8},
			{ID: "two", MediaKind: media.KindAudio, Filename: "b.wav", Confidence: 0.2},
		},
	}
	svc := NewHistoryService(reader)

	entries, err := svc.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].AnalysisID != "one" || entries[0].MediaKind != "image" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
}

func TestHistoryServiceDescribe(t *testing.T) {
	reader := &stubHistoryReader{
		byID: map[string]*history.Record{
			"one": {ID: "one", MediaKind: media.KindImage, IsFake: true},
		},
	}
	svc := NewHistoryService(reader)

	entry, err := svc.Describe(context.Background(), "one")
	if err != nil {
		t.Fatalf("Describe returned error: %v", err)
	}
	if entry == nil || !entry.IsFake {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	missing, err := svc.Describe(context.Background(), "absent")
	if err != nil || missing != nil {
		t.Fatalf("missing record should yield nil, nil; got %+v err %v", missing, err)
	}
}

func TestHistoryServiceSummary(t *testing.T) {
	reader := &stubHistoryReader{
		summary: history.Summary{
			Total:  5,
			Fakes:  2,
			ByKind: map[media.Kind]int{media.KindVideo: 5},
		},
	}
	svc := NewHistoryService(reader)

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary == nil || summary.Total != 5 || summary.ByKind["video"] != 5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHistoryServiceNilSafety(t *testing.T) {
	if svc := NewHistoryService(nil); svc != nil {
		t.Fatal("nil reader should produce nil service")
	}

	var svc *HistoryService
	if entries, err := svc.Recent(context.Background(), 5); entries != nil || err != nil {
		t.Fatalf("nil service Recent should be a no-op, got %v err %v", entries, err)
	}
	if entry, err := svc.Describe(context.Background(), "x"); entry != nil || err != nil {
		t.Fatalf("nil service Describe should be a no-op, got %v err %v", entry, err)
	}
	if summary, err := svc.Summary(context.Background()); summary != nil || err != nil {
		t.Fatalf("nil service Summary should be a no-op, got %v err %v", summary, err)
	}
}

func TestHistoryServicePropagatesErrors(t *testing.T) {
	boom := errors.New("database locked")
	svc := NewHistoryService(&stubHistoryReader{err: boom})

	if _, err := svc.Recent(context.Background(), 5); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
	if _, err := svc.Summary(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

package api

import (
	"context"

	"macroblock/internal/history"
)

// HistoryReader abstracts history persistence interactions needed for API
// queries.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]*history.Record, error)
	GetByID(ctx context.Context, id string) (*history.Record, error)
	Stats(ctx context.Context) (history.Summary, error)
}

// HistoryService exposes read-only history operations returning API DTOs.
type HistoryService struct {
	store HistoryReader
}

// NewHistoryService constructs a HistoryService around the provided reader.
func NewHistoryService(store HistoryReader) *HistoryService {
	if store == nil {
		return nil
	}
	return &HistoryService{store: store}
}

// Recent returns the most recent analyses, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	recs, err := s.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromHistoryRecords(recs), nil
}

// Describe fetches a single analysis by ID.
func (s *HistoryService) Describe(ctx context.Context, id string) (*HistoryEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rec, err := s.store.GetByID(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	dto := FromHistoryRecord(rec)
	return &dto, nil
}

// Summary returns aggregate analysis counts keyed by media kind.
func (s *HistoryService) Summary(ctx context.Context) (*HistorySummary, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	summary := FromHistorySummary(stats)
	return &summary, nil
}

package history

import (
	"context"
	"fmt"
	"time"

	"macroblock/internal/media"
)

// Summary aggregates history counts for status output.
type Summary struct {
	Total  int
	Fakes  int
	ByKind map[media.Kind]int
}

// Stats returns analysis counts grouped by media kind.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT media_kind, is_fake, COUNT(1) FROM analyses GROUP BY media_kind, is_fake`)
	if err != nil {
		return Summary{}, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	summary := Summary{ByKind: make(map[media.Kind]int)}
	for rows.Next() {
		var (
			kind  media.Kind
			fake  int
			count int
		)
		if err := rows.Scan(&kind, &fake, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		summary.ByKind[kind] += count
		if fake != 0 {
			summary.Fakes += count
		}
	}
	return summary, rows.Err()
}

// PruneOlderThan removes analyses created before the cutoff and reports how
// many were deleted.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM analyses WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all stored analyses.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM analyses`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"macroblock/internal/ensemble"
	"macroblock/internal/media"
)

// Record is one persisted analysis: the verdict plus the file identity used
// for cache replay and history listings.
type Record struct {
	ID              string
	CreatedAt       time.Time
	MediaKind       media.Kind
	Filename        string
	SizeBytes       int64
	SHA256          string
	PerceptualHash  string
	IsFake          bool
	Confidence      float64
	Method          string
	ModelScoresJSON string
	FramesAnalyzed  int
	ElapsedMS       float64
}

// SetScores serializes the per-detector score map into the record.
func (r *Record) SetScores(scores map[string]ensemble.ModelScore) error {
	if len(scores) == 0 {
		r.ModelScoresJSON = ""
		return nil
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal model scores: %w", err)
	}
	r.ModelScoresJSON = string(data)
	return nil
}

// Scores decodes the stored per-detector score map, or nil when the record
// carries none or the stored JSON is unreadable.
func (r *Record) Scores() map[string]ensemble.ModelScore {
	if r == nil || r.ModelScoresJSON == "" {
		return nil
	}
	scores := make(map[string]ensemble.ModelScore)
	if err := json.Unmarshal([]byte(r.ModelScoresJSON), &scores); err != nil {
		return nil
	}
	return scores
}

const defaultRecentLimit = 50

// Insert stores a completed analysis. CreatedAt defaults to the current time
// when unset.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO analyses (
            id, created_at, media_kind, filename, size_bytes, sha256, phash,
            is_fake, confidence, method, model_scores_json, frames_analyzed, elapsed_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.MediaKind,
		nullableString(rec.Filename),
		rec.SizeBytes,
		nullableString(rec.SHA256),
		nullableString(rec.PerceptualHash),
		boolToInt(rec.IsFake),
		rec.Confidence,
		nullableString(rec.Method),
		nullableString(rec.ModelScoresJSON),
		rec.FramesAnalyzed,
		rec.ElapsedMS,
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// GetByID fetches an analysis by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM analyses WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return rec, nil
}

// Recent returns the newest analyses, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM analyses ORDER BY created_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FindBySHA256 returns the most recent analysis of a file with the given
// digest, or nil when the digest has not been seen.
func (s *Store) FindBySHA256(ctx context.Context, digest string) (*Record, error) {
	if strings.TrimSpace(digest) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM analyses WHERE sha256 = ? ORDER BY created_at DESC LIMIT 1`,
		digest,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by digest: %w", err)
	}
	return rec, nil
}

// FindSimilarImage returns the image analysis whose perceptual hash is
// closest to the supplied one within maxDistance bits, along with the
// measured distance. Hamming distance is computed in process because SQLite
// cannot, so the scan walks candidate rows newest first and stops early on
// an exact match.
func (s *Store) FindSimilarImage(ctx context.Context, phash string, maxDistance int) (*Record, int, error) {
	if strings.TrimSpace(phash) == "" || maxDistance < 0 {
		return nil, 0, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM analyses
         WHERE media_kind = ? AND phash IS NOT NULL AND phash != ''
         ORDER BY created_at DESC, id`,
		media.KindImage,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query image hashes: %w", err)
	}
	defer rows.Close()

	var (
		best         *Record
		bestDistance int
	)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		distance, err := media.HashDistance(phash, rec.PerceptualHash)
		if err != nil || distance > maxDistance {
			continue
		}
		if best == nil || distance < bestDistance {
			best = rec
			bestDistance = distance
			if bestDistance == 0 {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate image hashes: %w", err)
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestDistance, nil
}

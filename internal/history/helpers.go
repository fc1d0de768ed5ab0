package history

import (
	"database/sql"
	"errors"
	"time"

	"macroblock/internal/media"
)

const recordColumns = "id, created_at, media_kind, filename, size_bytes, sha256, phash, is_fake, confidence, method, model_scores_json, frames_analyzed, elapsed_ms"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id         string
		createdRaw sql.NullString
		kind       string
		filename   sql.NullString
		sizeBytes  sql.NullInt64
		digest     sql.NullString
		phash      sql.NullString
		isFake     sql.NullInt64
		confidence sql.NullFloat64
		method     sql.NullString
		scoresJSON sql.NullString
		frames     sql.NullInt64
		elapsedMS  sql.NullFloat64
	)

	if err := scanner.Scan(
		&id,
		&createdRaw,
		&kind,
		&filename,
		&sizeBytes,
		&digest,
		&phash,
		&isFake,
		&confidence,
		&method,
		&scoresJSON,
		&frames,
		&elapsedMS,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:              id,
		MediaKind:       media.Kind(kind),
		Filename:        filename.String,
		SizeBytes:       sizeBytes.Int64,
		SHA256:          digest.String,
		PerceptualHash:  phash.String,
		IsFake:          isFake.Int64 != 0,
		Confidence:      confidence.Float64,
		Method:          method.String,
		ModelScoresJSON: scoresJSON.String,
		FramesAnalyzed:  int(frames.Int64),
		ElapsedMS:       elapsedMS.Float64,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

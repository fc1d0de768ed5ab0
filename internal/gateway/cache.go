package gateway

import (
	"context"

	"macroblock/internal/ensemble"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/temporal"
)

// lookupReplay checks the history store for a prior verdict covering the same
// evidence: an exact digest match for any kind, then a perceptually similar
// image within the configured Hamming distance. Returns nil when caching is
// disabled, the store is absent, or nothing matches. Lookup failures degrade
// to a fresh analysis.
func (e *Engine) lookupReplay(ctx context.Context, kind media.Kind, digest, phash string) (*history.Record, int) {
	if e.store == nil || !e.cfg.Cache.Enabled {
		return nil, 0
	}
	logger := logging.WithContext(ctx, e.logger)

	rec, err := e.store.FindBySHA256(ctx, digest)
	if err != nil {
		logger.Warn("cache digest lookup failed", logging.Error(err))
	} else if rec != nil && rec.MediaKind == kind {
		return rec, 0
	}

	if kind != media.KindImage || phash == "" {
		return nil, 0
	}
	rec, distance, err := e.store.FindSimilarImage(ctx, phash, e.cfg.Cache.MaxDistance)
	if err != nil {
		logger.Warn("cache similarity lookup failed", logging.Error(err))
		return nil, 0
	}
	if rec == nil {
		return nil, 0
	}
	return rec, distance
}

// replayResult rebuilds a Result from a stored record. The envelope fields
// describe the current request; the verdict, analysis ID, and timestamp come
// from the original analysis so the replay stays traceable in history.
func (e *Engine) replayResult(rec *history.Record, distance int, kind media.Kind, filename string, size int64, digest, phash string) *Result {
	result := &Result{
		ID:             rec.ID,
		CreatedAt:      rec.CreatedAt,
		Kind:           kind,
		Filename:       filename,
		SizeBytes:      size,
		SHA256:         digest,
		PerceptualHash: phash,
		Reliable:       e.reliable(rec.Confidence),
		Cached:         true,
		CacheDistance:  distance,
	}

	scores := rec.Scores()
	if scores == nil {
		scores = map[string]ensemble.ModelScore{}
	}
	if kind == media.KindVideo {
		result.Video = &VideoReport{
			VideoVerdict: temporal.VideoVerdict{
				IsFake:         rec.IsFake,
				Confidence:     rec.Confidence,
				FramesAnalyzed: rec.FramesAnalyzed,
				Method:         rec.Method,
			},
			ModelScores: scores,
		}
	} else {
		result.Verdict = &ensemble.Verdict{
			IsFake:      rec.IsFake,
			Confidence:  rec.Confidence,
			ModelScores: scores,
			Detailed:    []score.Detection{},
		}
	}
	return result
}

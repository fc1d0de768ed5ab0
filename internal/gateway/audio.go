package gateway

import (
	"context"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/ensemble"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/services"
)

// AnalyzeAudio scores one uploaded audio clip through the audio-modality
// ensemble. Replay covers exact digests only; there is no perceptual hash for
// audio.
func (e *Engine) AnalyzeAudio(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze audio", "empty upload", nil)
	}

	digest := media.Digest(data)
	if rec, distance := e.lookupReplay(ctx, media.KindAudio, digest, ""); rec != nil {
		result := e.replayResult(rec, distance, media.KindAudio, filename, int64(len(data)), digest, "")
		result.ElapsedMS = elapsedMS(start)
		logging.WithContext(ctx, e.logger).Info("audio verdict replayed from history",
			logging.String(logging.FieldAnalysisID, result.ID),
			logging.String("filename", filename),
			logging.Bool("is_fake", result.IsFake()))
		return result, nil
	}

	result := e.newResult(media.KindAudio, filename, int64(len(data)))
	result.SHA256 = digest
	ctx = services.WithAnalysisID(ctx, result.ID)

	scores, failures := e.runDetectors(ctx, media.KindAudio, detector.Item{Path: filename, Data: data})
	verdict := ensemble.Aggregate(scores, failures)
	result.Verdict = &verdict
	result.Reliable = e.reliable(verdict.Confidence)
	result.ElapsedMS = elapsedMS(start)

	e.persist(ctx, result)
	e.notifyVerdict(ctx, result)

	logging.WithContext(ctx, e.logger).Info("audio analysis completed",
		logging.String("filename", filename),
		logging.Bool("is_fake", verdict.IsFake),
		logging.Float64("confidence", verdict.Confidence),
		logging.Int("detectors_voted", len(scores)),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

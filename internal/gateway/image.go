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

// AnalyzeImage scores one uploaded image through the image-modality ensemble.
// Perceptually identical images already in history are replayed instead of
// re-scored.
func (e *Engine) AnalyzeImage(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze image", "empty upload", nil)
	}

	digest := media.Digest(data)
	phash, err := media.PerceptualHash(data)
	if err != nil {
		phash = ""
		logging.WithContext(ctx, e.logger).Debug("perceptual hash unavailable", logging.Error(err))
	}

	if rec, distance := e.lookupReplay(ctx, media.KindImage, digest, phash); rec != nil {
		result := e.replayResult(rec, distance, media.KindImage, filename, int64(len(data)), digest, phash)
		result.ElapsedMS = elapsedMS(start)
		logging.WithContext(ctx, e.logger).Info("image verdict replayed from history",
			logging.String(logging.FieldAnalysisID, result.ID),
			logging.String("filename", filename),
			logging.Int("hash_distance", distance),
			logging.Bool("is_fake", result.IsFake()))
		return result, nil
	}

	result := e.newResult(media.KindImage, filename, int64(len(data)))
	result.SHA256 = digest
	result.PerceptualHash = phash
	ctx = services.WithAnalysisID(ctx, result.ID)

	scores, failures := e.runDetectors(ctx, media.KindImage, detector.Item{Path: filename, Data: data})
	verdict := ensemble.Aggregate(scores, failures)
	result.Verdict = &verdict
	result.Reliable = e.reliable(verdict.Confidence)
	result.ElapsedMS = elapsedMS(start)

	e.persist(ctx, result)
	e.notifyVerdict(ctx, result)

	logging.WithContext(ctx, e.logger).Info("image analysis completed",
		logging.String("filename", filename),
		logging.Bool("is_fake", verdict.IsFake),
		logging.Float64("confidence", verdict.Confidence),
		logging.Int("detectors_voted", len(scores)),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

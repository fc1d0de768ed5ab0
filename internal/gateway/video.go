package gateway

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"macroblock/internal/detector"
	"macroblock/internal/ensemble"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
	"macroblock/internal/temporal"
)

// noFramesMessage is reported on video verdicts whose frame pipeline
// produced nothing to score.
const noFramesMessage = "no frames could be extracted"

// AnalyzeVideo runs the frame pipeline against one uploaded video: stage the
// upload, sample frames with ffmpeg, run the image ensemble per frame, and
// fold the sequence through temporal consistency analysis. Whole-video
// detectors, when registered, blend into a hybrid verdict.
func (e *Engine) AnalyzeVideo(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "gateway", "analyze video", "empty upload", nil)
	}

	digest := media.Digest(data)
	if rec, distance := e.lookupReplay(ctx, media.KindVideo, digest, ""); rec != nil {
		result := e.replayResult(rec, distance, media.KindVideo, filename, int64(len(data)), digest, "")
		result.ElapsedMS = elapsedMS(start)
		logging.WithContext(ctx, e.logger).Info("video verdict replayed from history",
			logging.String(logging.FieldAnalysisID, result.ID),
			logging.String("filename", filename),
			logging.Bool("is_fake", result.IsFake()))
		return result, nil
	}

	result := e.newResult(media.KindVideo, filename, int64(len(data)))
	result.SHA256 = digest
	ctx = services.WithAnalysisID(ctx, result.ID)
	logger := logging.WithContext(ctx, e.logger)

	frameDetectors := e.registry.ByModality(media.KindImage)
	videoDetectors := e.registry.ByModality(media.KindVideo)
	if len(frameDetectors) == 0 && len(videoDetectors) == 0 {
		analysis := e.analyzer.Analyze(nil)
		result.Video = &VideoReport{
			VideoVerdict: temporal.VideoVerdict{Method: temporal.MethodNoFrames},
			ModelScores:  map[string]ensemble.ModelScore{},
			Temporal:     &analysis,
			Error:        ensemble.NoDetectorsMessage,
		}
		result.ElapsedMS = elapsedMS(start)
		logger.Warn("video analysis skipped", logging.String("reason", ensemble.NoDetectorsMessage))
		return result, nil
	}

	workDir, err := os.MkdirTemp(e.cfg.Paths.WorkDir, "analysis-*")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "analyze video", "create work dir", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, sanitizeFilename(filename))
	if err := os.WriteFile(sourcePath, data, 0o644); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "analyze video", "stage upload", err)
	}

	probe, probeErr := probeVideo(ctx, e.cfg.FFprobeBinary(), sourcePath)
	if probeErr != nil {
		logger.Warn("ffprobe inspection failed", logging.Error(probeErr))
	}

	preds, framesSampled, frameScores, err := e.scoreFrames(ctx, frameDetectors, sourcePath, filepath.Join(workDir, "frames"))
	if err != nil {
		return nil, err
	}

	analysis := e.analyzer.Analyze(preds)
	final := e.aggregator.AggregateVideo(preds, analysis)

	if len(videoDetectors) > 0 {
		vScores, vFailures := e.runDetectors(ctx, media.KindVideo, detector.Item{Path: sourcePath, Data: data})
		vVerdict := ensemble.Aggregate(vScores, vFailures)
		frameScores.absorb(vScores, vFailures)
		if len(vVerdict.Detailed) > 0 {
			final = e.blendVerdicts(vVerdict, final)
		}
	}

	report := &VideoReport{
		VideoVerdict: final,
		ModelScores:  frameScores.merged(),
		Temporal:     &analysis,
	}
	if final.Method == temporal.MethodNoFrames {
		report.Error = noFramesMessage
	}

	result.Video = report
	result.Reliable = e.reliable(final.Confidence)
	result.ElapsedMS = elapsedMS(start)

	e.persist(ctx, result)
	e.notifyVerdict(ctx, result)

	logger.Info("video analysis completed",
		logging.String("filename", filename),
		logging.Bool("is_fake", final.IsFake),
		logging.Float64("confidence", final.Confidence),
		logging.String("method", final.Method),
		logging.Int("frames_sampled", framesSampled),
		logging.Int("frames_analyzed", final.FramesAnalyzed),
		logging.Float64("duration_seconds", probe.DurationSeconds()),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

// scoreFrames samples frames from the staged video and runs the image
// ensemble over each. Frames where no detector voted are dropped rather than
// recorded as clean; fabricating a zero-probability prediction would dilute
// the sequence.
func (e *Engine) scoreFrames(ctx context.Context, frameDetectors []detector.Detector, sourcePath, framesDir string) ([]temporal.FramePrediction, int, *scoreAccumulator, error) {
	acc := newScoreAccumulator()
	if len(frameDetectors) == 0 {
		return nil, 0, acc, nil
	}

	frames, err := extractFrames(ctx, e.cfg.FFmpegBinary(), sourcePath, framesDir, e.cfg.Analysis.SampleRate, e.cfg.Analysis.MaxFrames)
	if err != nil {
		return nil, 0, nil, services.Wrap(services.ErrExternalTool, "gateway", "analyze video", "extract frames", err)
	}

	logger := logging.WithContext(ctx, e.logger)
	preds := make([]temporal.FramePrediction, 0, len(frames))
	for _, frame := range frames {
		frameData, err := os.ReadFile(frame.Path)
		if err != nil {
			logger.Warn("sampled frame unreadable",
				logging.Int("frame_index", frame.Index),
				logging.Error(err))
			continue
		}
		scores, failures := e.runDetectors(ctx, media.KindImage, detector.Item{Path: frame.Path, Data: frameData})
		acc.absorb(scores, failures)
		verdict := ensemble.Aggregate(scores, failures)
		if len(verdict.Detailed) == 0 {
			continue
		}
		preds = append(preds, temporal.FramePrediction{
			FrameIndex:      frame.Index,
			IsFake:          verdict.IsFake,
			FakeProbability: verdict.MeanFakeProbability(),
			Confidence:      verdict.Confidence,
		})
	}
	return preds, len(frames), acc, nil
}

// blendVerdicts combines the whole-video ensemble with the temporal verdict.
// Confidence is the configured weighted blend; the fake flag is an OR of the
// two branches, so disagreement flags. When the frame pipeline produced
// nothing the ensemble branch stands alone.
func (e *Engine) blendVerdicts(v ensemble.Verdict, t temporal.VideoVerdict) temporal.VideoVerdict {
	if t.Method == temporal.MethodNoFrames {
		return temporal.VideoVerdict{
			IsFake:     v.IsFake,
			Confidence: v.Confidence,
			Method:     MethodHybrid,
		}
	}

	videoWeight := e.cfg.Analysis.VideoWeight
	temporalWeight := e.cfg.Analysis.TemporalWeight
	if videoWeight <= 0 && temporalWeight <= 0 {
		videoWeight, temporalWeight = 0.7, 0.3
	}
	confidence := v.Confidence*videoWeight + t.Confidence*temporalWeight
	if confidence > 1 {
		confidence = 1
	}

	return temporal.VideoVerdict{
		IsFake:         v.IsFake || t.IsFake,
		Confidence:     confidence,
		FakeFrameRatio: t.FakeFrameRatio,
		FramesAnalyzed: t.FramesAnalyzed,
		Method:         MethodHybrid,
	}
}

// scoreAccumulator folds per-frame detector results into one model score map:
// the mean fake probability per detector over the frames it scored, or the
// last error for detectors that never produced a usable score.
type scoreAccumulator struct {
	sums   map[string]float64
	counts map[string]int
	errs   map[string]string
}

func newScoreAccumulator() *scoreAccumulator {
	return &scoreAccumulator{
		sums:   make(map[string]float64),
		counts: make(map[string]int),
		errs:   make(map[string]string),
	}
}

func (a *scoreAccumulator) absorb(scores []score.Detection, failures map[string]string) {
	for _, det := range scores {
		a.sums[det.DetectorName] += det.FakeProbability
		a.counts[det.DetectorName]++
	}
	for name, message := range failures {
		a.errs[name] = message
	}
}

func (a *scoreAccumulator) merged() map[string]ensemble.ModelScore {
	out := make(map[string]ensemble.ModelScore, len(a.counts)+len(a.errs))
	for name, message := range a.errs {
		out[name] = ensemble.ModelScore{Err: message}
	}
	for name, count := range a.counts {
		if count > 0 {
			out[name] = ensemble.ModelScore{FakeProbability: a.sums[name] / float64(count)}
		}
	}
	return out
}

// sanitizeFilename reduces an upload's client-supplied name to a safe base
// name for staging on disk. The extension is kept so ffmpeg can infer the
// container format.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "upload.bin"
	}
	return name
}

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"macroblock/internal/config"
	"macroblock/internal/detector"
	"macroblock/internal/ensemble"
	"macroblock/internal/history"
	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/notifications"
	"macroblock/internal/score"
	"macroblock/internal/temporal"
)

// Method values reported on analysis results. Video results additionally use
// the temporal package's method constants.
const (
	MethodEnsemble = "ensemble"
	MethodHybrid   = "hybrid"
)

// Engine coordinates analysis requests across the detector registry, the
// temporal pipeline, the history store, and notifications.
type Engine struct {
	cfg      *config.Config
	registry *detector.Registry
	store    *history.Store
	notifier notifications.Service
	logger   *slog.Logger

	analyzer   temporal.Analyzer
	aggregator temporal.Aggregator
}

// New constructs an analysis engine. store may be nil when history is
// disabled; replay and persistence are skipped in that case.
func New(cfg *config.Config, registry *detector.Registry, store *history.Store, logger *slog.Logger) *Engine {
	return NewWithNotifier(cfg, registry, store, logger, notifications.NewService(cfg))
}

// NewWithNotifier constructs an analysis engine with a custom notifier (used
// in tests).
func NewWithNotifier(cfg *config.Config, registry *detector.Registry, store *history.Store, logger *slog.Logger, notifier notifications.Service) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		notifier: notifier,
		logger:   logger.With(logging.String(logging.FieldComponent, "gateway")),
		analyzer: temporal.Analyzer{
			VariancePenalty:      cfg.Temporal.VariancePenalty,
			ConsistencyThreshold: cfg.Temporal.ConsistencyThreshold,
			FlickerThreshold:     cfg.Temporal.FlickerThreshold,
		},
		aggregator: temporal.Aggregator{
			MeanWeight:   cfg.Temporal.MeanWeight,
			PeakWeight:   cfg.Temporal.PeakWeight,
			FlickerBonus: cfg.Temporal.FlickerBonus,
		},
	}
}

// Registry exposes the detector registry backing this engine.
func (e *Engine) Registry() *detector.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// VideoReport is the video-level analysis result: the blended verdict plus
// the per-detector scores and the consistency analysis behind it. Temporal is
// nil on cache replays, where the original frame data is gone.
type VideoReport struct {
	temporal.VideoVerdict
	ModelScores map[string]ensemble.ModelScore `json:"model_scores"`
	Temporal    *temporal.Analysis             `json:"temporal_analysis,omitempty"`
	Error       string                         `json:"error,omitempty"`
}

// Result is one completed analysis. Exactly one of Verdict and Video is set,
// depending on the media kind.
type Result struct {
	ID             string
	CreatedAt      time.Time
	Kind           media.Kind
	Filename       string
	SizeBytes      int64
	SHA256         string
	PerceptualHash string

	Verdict *ensemble.Verdict
	Video   *VideoReport

	Reliable      bool
	Cached        bool
	CacheDistance int
	ElapsedMS     float64
}

// IsFake reports the final flag regardless of media kind.
func (r *Result) IsFake() bool {
	switch {
	case r == nil:
		return false
	case r.Video != nil:
		return r.Video.IsFake
	case r.Verdict != nil:
		return r.Verdict.IsFake
	default:
		return false
	}
}

// Confidence reports the final verdict confidence regardless of media kind.
func (r *Result) Confidence() float64 {
	switch {
	case r == nil:
		return 0
	case r.Video != nil:
		return r.Video.Confidence
	case r.Verdict != nil:
		return r.Verdict.Confidence
	default:
		return 0
	}
}

// Method names the decision path that produced the result.
func (r *Result) Method() string {
	if r != nil && r.Video != nil {
		return r.Video.Method
	}
	return MethodEnsemble
}

// FramesAnalyzed reports the sampled frame count for video results, zero
// otherwise.
func (r *Result) FramesAnalyzed() int {
	if r != nil && r.Video != nil {
		return r.Video.FramesAnalyzed
	}
	return 0
}

// ModelScores returns the per-detector score map regardless of media kind.
func (r *Result) ModelScores() map[string]ensemble.ModelScore {
	switch {
	case r == nil:
		return nil
	case r.Video != nil:
		return r.Video.ModelScores
	case r.Verdict != nil:
		return r.Verdict.ModelScores
	default:
		return nil
	}
}

func (r *Result) verdictError() string {
	switch {
	case r == nil:
		return ""
	case r.Video != nil:
		return r.Video.Error
	case r.Verdict != nil:
		return r.Verdict.Error
	default:
		return ""
	}
}

func (e *Engine) newResult(kind media.Kind, filename string, size int64) *Result {
	return &Result{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Filename:  filename,
		SizeBytes: size,
	}
}

func (e *Engine) reliable(confidence float64) bool {
	threshold := e.cfg.Analysis.ReliabilityThreshold
	if threshold <= 0 {
		return true
	}
	return confidence >= threshold
}

func elapsedMS(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000
}

// runDetectors fans one item out to every registered detector for the kind,
// sequentially in name order so verdicts are deterministic. Failures are
// collected instead of aborting; the ensemble records them per detector.
func (e *Engine) runDetectors(ctx context.Context, kind media.Kind, item detector.Item) ([]score.Detection, map[string]string) {
	detectors := e.registry.ByModality(kind)
	if len(detectors) == 0 {
		return nil, nil
	}

	logger := logging.WithContext(ctx, e.logger)
	scores := make([]score.Detection, 0, len(detectors))
	var failures map[string]string
	for _, d := range detectors {
		detection, err := e.registry.Infer(ctx, d, item)
		if err != nil {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[d.Name()] = err.Error()
			logger.Warn("detector inference failed",
				logging.String(logging.FieldDetector, d.Name()),
				logging.String(logging.FieldMediaKind, kind.String()),
				logging.Error(err))
			continue
		}
		scores = append(scores, detection)
	}
	return scores, failures
}

// persist writes a completed analysis to the history store. Persistence is
// best effort: the verdict is already computed, so a failed write logs and
// the response still goes out.
func (e *Engine) persist(ctx context.Context, result *Result) {
	if e.store == nil || result == nil || result.Cached {
		return
	}
	// A no-detector outcome reflects the deployment, not the evidence;
	// recording it would let the cache replay it after detectors come up.
	if result.verdictError() == ensemble.NoDetectorsMessage {
		return
	}

	rec := &history.Record{
		ID:             result.ID,
		CreatedAt:      result.CreatedAt,
		MediaKind:      result.Kind,
		Filename:       result.Filename,
		SizeBytes:      result.SizeBytes,
		SHA256:         result.SHA256,
		PerceptualHash: result.PerceptualHash,
		IsFake:         result.IsFake(),
		Confidence:     result.Confidence(),
		Method:         result.Method(),
		FramesAnalyzed: result.FramesAnalyzed(),
		ElapsedMS:      result.ElapsedMS,
	}
	logger := logging.WithContext(ctx, e.logger)
	if err := rec.SetScores(result.ModelScores()); err != nil {
		logger.Warn("model scores not persistable", logging.Error(err))
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		logger.Warn("history write failed", logging.Error(err))
	}
}

// notifyVerdict pushes an alert for fresh fake verdicts at or above the
// configured confidence floor. Notification failures never fail the analysis.
func (e *Engine) notifyVerdict(ctx context.Context, result *Result) {
	if e.notifier == nil || result == nil || result.Cached || !result.IsFake() {
		return
	}
	if result.Confidence() < e.cfg.Notifications.MinConfidence {
		return
	}
	if err := e.notifier.NotifyFakeDetected(ctx, result.Filename, result.Kind.String(), result.Confidence()); err != nil {
		logger := logging.WithContext(ctx, e.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutdown interrupted fake notification")
		} else {
			logger.Debug("fake notification failed", logging.Error(err))
		}
	}
}

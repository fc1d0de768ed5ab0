// Package temporal turns ordered per-frame predictions for one video into a
// temporally-aware verdict.
//
// Two independent signals come out of a frame sequence: global noisiness
// (population variance of fake probability) and localized flicker (abrupt
// adjacent-frame jumps). They capture different manipulation failure modes
// and are surfaced separately; a sequence can be consistent overall yet
// still flicker once. All functions here are deterministic and pure.
package temporal

import (
	"fmt"
	"sort"
)

// Defaults for the analyzer and aggregator tunables. The variance penalty in
// particular is a design parameter, not a law of nature; config can override
// every one of these.
const (
	DefaultVariancePenalty      = 2.0
	DefaultConsistencyThreshold = 0.3
	DefaultFlickerThreshold     = 0.4
	DefaultMeanWeight           = 0.6
	DefaultPeakWeight           = 0.4
	DefaultFlickerBonus         = 0.1
)

// flickerArtifactCap bounds how many flicker points the advisory artifact
// carries. FlickerCount still reports the true total.
const flickerArtifactCap = 5

// Method values reported on video verdicts.
const (
	MethodTemporal = "temporal"
	MethodNoFrames = "no_frames"
)

// FramePrediction is one analyzed video frame's canonical result. Sequences
// are ordered by FrameIndex; that ordering is the temporal axis flicker
// detection depends on.
type FramePrediction struct {
	FrameIndex      int     `json:"frame_index"`
	IsFake          bool    `json:"is_fake"`
	FakeProbability float64 `json:"fake_probability"`
	Confidence      float64 `json:"confidence"`
}

// FlickerPoint records one abrupt fake-probability swing between adjacent
// frames.
type FlickerPoint struct {
	FrameIndex     int     `json:"frame_index"`
	ConfidenceJump float64 `json:"confidence_jump"`
	From           float64 `json:"from"`
	To             float64 `json:"to"`
}

// Artifact is an advisory explanation entry. It restates what variance and
// flicker already captured and never feeds back into the decision.
type Artifact struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Variance    float64        `json:"variance,omitempty"`
	Count       int            `json:"count,omitempty"`
	Points      []FlickerPoint `json:"points,omitempty"`
}

// Analysis is the derived, stateless consistency result for one frame
// sequence. It is recomputed fresh per request and never persisted.
type Analysis struct {
	IsConsistent     bool       `json:"is_consistent"`
	ConsistencyScore float64    `json:"consistency_score"`
	MeanConfidence   float64    `json:"mean_confidence"`
	Variance         float64    `json:"variance"`
	FakeFrameRatio   float64    `json:"fake_frame_ratio"`
	FlickerDetected  bool       `json:"flicker_detected"`
	FlickerCount     int        `json:"flicker_count"`
	Artifacts        []Artifact `json:"artifacts"`
}

// Analyzer computes consistency analyses. The zero value uses the package
// defaults.
type Analyzer struct {
	// VariancePenalty multiplies variance before clamping into the
	// consistency score.
	VariancePenalty float64
	// ConsistencyThreshold is the variance at or above which a sequence is
	// inconsistent.
	ConsistencyThreshold float64
	// FlickerThreshold is the adjacent-frame jump that counts as flicker.
	FlickerThreshold float64
}

// NewAnalyzer returns an analyzer with the package defaults.
func NewAnalyzer() Analyzer {
	return Analyzer{
		VariancePenalty:      DefaultVariancePenalty,
		ConsistencyThreshold: DefaultConsistencyThreshold,
		FlickerThreshold:     DefaultFlickerThreshold,
	}
}

func (a Analyzer) effective() Analyzer {
	if a.VariancePenalty <= 0 {
		a.VariancePenalty = DefaultVariancePenalty
	}
	if a.ConsistencyThreshold <= 0 {
		a.ConsistencyThreshold = DefaultConsistencyThreshold
	}
	if a.FlickerThreshold <= 0 {
		a.FlickerThreshold = DefaultFlickerThreshold
	}
	return a
}

// Analyze computes the consistency result for an ordered frame sequence.
// The input is re-sorted by frame index first, so callers that fan frames
// out to parallel workers cannot silently invalidate flicker detection. An
// empty sequence yields the identity result, not an error.
func (a Analyzer) Analyze(frames []FramePrediction) Analysis {
	a = a.effective()

	if len(frames) == 0 {
		return Analysis{
			IsConsistent:     true,
			ConsistencyScore: 1.0,
			Artifacts:        []Artifact{},
		}
	}

	ordered := make([]FramePrediction, len(frames))
	copy(ordered, frames)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FrameIndex < ordered[j].FrameIndex
	})

	var probSum, confSum float64
	fakeFrames := 0
	for _, frame := range ordered {
		probSum += frame.FakeProbability
		confSum += frame.Confidence
		if frame.IsFake {
			fakeFrames++
		}
	}
	count := float64(len(ordered))
	probMean := probSum / count

	var variance float64
	for _, frame := range ordered {
		dev := frame.FakeProbability - probMean
		variance += dev * dev
	}
	variance /= count

	var flickerPoints []FlickerPoint
	for i := 1; i < len(ordered); i++ {
		jump := ordered[i].FakeProbability - ordered[i-1].FakeProbability
		if jump < 0 {
			jump = -jump
		}
		if jump > a.FlickerThreshold {
			flickerPoints = append(flickerPoints, FlickerPoint{
				FrameIndex:     ordered[i].FrameIndex,
				ConfidenceJump: jump,
				From:           ordered[i-1].FakeProbability,
				To:             ordered[i].FakeProbability,
			})
		}
	}

	consistencyScore := 1.0 - clamp01(a.VariancePenalty*variance)

	artifacts := []Artifact{}
	if variance > a.ConsistencyThreshold {
		artifacts = append(artifacts, Artifact{
			Type:        "high_variance",
			Description: fmt.Sprintf("prediction variance %.3f exceeds threshold %.3f", variance, a.ConsistencyThreshold),
			Variance:    variance,
		})
	}
	if len(flickerPoints) > 0 {
		capped := flickerPoints
		if len(capped) > flickerArtifactCap {
			capped = capped[:flickerArtifactCap]
		}
		points := make([]FlickerPoint, len(capped))
		copy(points, capped)
		artifacts = append(artifacts, Artifact{
			Type:        "flickering",
			Description: fmt.Sprintf("%d abrupt frame-to-frame prediction swings", len(flickerPoints)),
			Count:       len(flickerPoints),
			Points:      points,
		})
	}

	return Analysis{
		IsConsistent:     variance < a.ConsistencyThreshold,
		ConsistencyScore: consistencyScore,
		MeanConfidence:   confSum / count,
		Variance:         variance,
		FakeFrameRatio:   float64(fakeFrames) / count,
		FlickerDetected:  len(flickerPoints) > 0,
		FlickerCount:     len(flickerPoints),
		Artifacts:        artifacts,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

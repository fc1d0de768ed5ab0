// Package score canonicalizes raw detector outputs.
//
// Pretrained checkpoints disagree about how they report fake probability:
// some emit a single sigmoid value, others a two-way softmax with the fake
// class at index 0 or index 1. Each detector declares its convention and
// fake-label index at registration time; nothing here ever infers the
// mapping from the data. Malformed outputs are rejected at this boundary so
// the aggregation math never sees them.
package score

import (
	"fmt"
	"math"

	"macroblock/internal/services"
)

// Convention names the shape of a detector's raw output.
type Convention string

const (
	// ConventionDirect is a single sigmoid probability of fake.
	ConventionDirect Convention = "direct"
	// ConventionSoftmax is a two-way class distribution; the fake class
	// position comes from the declared fake-label index.
	ConventionSoftmax Convention = "softmax"
)

// DefaultThreshold is the decision threshold applied when a detector does
// not declare its own.
const DefaultThreshold = 0.5

// sumTolerance bounds how far a two-way distribution may drift from 1.0
// before it is rejected as malformed.
const sumTolerance = 1e-3

// Detection is the canonical per-detector result. One is produced per
// detector invocation and owned by the caller; it is never shared across
// requests.
type Detection struct {
	DetectorName     string  `json:"detector_name"`
	IsFake           bool    `json:"is_fake"`
	FakeProbability  float64 `json:"fake_probability"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// RealProbability returns the complement of the fake probability. The two
// always sum to exactly 1 for a canonicalized detection.
func (d Detection) RealProbability() float64 {
	return 1 - d.FakeProbability
}

// RawOutput carries a detector's unnormalized result.
type RawOutput struct {
	// FakeProbability is the sigmoid output for ConventionDirect.
	FakeProbability *float64
	// Probabilities is the two-way distribution for ConventionSoftmax.
	Probabilities []float64
	// ProcessingTimeMS is wall-clock inference time, passed through.
	ProcessingTimeMS float64
}

// Normalizer converts raw outputs under one declared convention.
type Normalizer struct {
	// Convention defaults to ConventionDirect when empty.
	Convention Convention
	// FakeLabelIndex locates the fake class for softmax outputs. Required
	// for ConventionSoftmax; must be 0 or 1.
	FakeLabelIndex int
	// Threshold is the fake decision boundary; DefaultThreshold when zero.
	Threshold float64
}

// Normalize canonicalizes one raw output into a Detection.
func (n Normalizer) Normalize(detectorName string, raw RawOutput) (Detection, error) {
	threshold := n.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	convention := n.Convention
	if convention == "" {
		convention = ConventionDirect
	}

	var fake float64
	switch convention {
	case ConventionDirect:
		if raw.FakeProbability == nil {
			return Detection{}, services.Wrap(services.ErrInvalidScore, "score", "normalize",
				fmt.Sprintf("detector %q output is missing fake_probability", detectorName), nil)
		}
		fake = *raw.FakeProbability
		if fake < 0 || fake > 1 || math.IsNaN(fake) {
			return Detection{}, services.Wrap(services.ErrInvalidScore, "score", "normalize",
				fmt.Sprintf("detector %q fake_probability %v outside [0,1]", detectorName, fake), nil)
		}
	case ConventionSoftmax:
		if len(raw.Probabilities) != 2 {
			return Detection{}, services.Wrap(services.ErrInvalidScore, "score", "normalize",
				fmt.Sprintf("detector %q output has %d class probabilities, want 2", detectorName, len(raw.Probabilities)), nil)
		}
		if n.FakeLabelIndex != 0 && n.FakeLabelIndex != 1 {
			return Detection{}, services.Wrap(services.ErrConfiguration, "score", "normalize",
				fmt.Sprintf("detector %q fake_label_index %d must be 0 or 1", detectorName, n.FakeLabelIndex), nil)
		}
		p0, p1 := raw.Probabilities[0], raw.Probabilities[1]
		if p0 < 0 || p1 < 0 || math.IsNaN(p0) || math.IsNaN(p1) {
			return Detection{}, services.Wrap(services.ErrInvalidScore, "score", "normalize",
				fmt.Sprintf("detector %q emitted negative class probability", detectorName), nil)
		}
		if diff := math.Abs(p0 + p1 - 1); diff > sumTolerance {
			return Detection{}, services.Wrap(services.ErrInvalidScore, "score", "normalize",
				fmt.Sprintf("detector %q class probabilities sum to %v, want 1", detectorName, p0+p1), nil)
		}
		fake = raw.Probabilities[n.FakeLabelIndex]
		if fake > 1 {
			fake = 1
		}
	default:
		return Detection{}, services.Wrap(services.ErrConfiguration, "score", "normalize",
			fmt.Sprintf("detector %q declares unknown output convention %q", detectorName, convention), nil)
	}

	isFake := fake >= threshold
	confidence := fake
	if !isFake {
		confidence = 1 - fake
	}

	return Detection{
		DetectorName:     detectorName,
		IsFake:           isFake,
		FakeProbability:  fake,
		Confidence:       confidence,
		ProcessingTimeMS: raw.ProcessingTimeMS,
	}, nil
}

// Package ensemble combines canonical detector scores for one media item
// into a single verdict.
//
// The vote is detector-count-agnostic and tolerates partial availability:
// detectors that failed during inference are excluded from the vote but
// surfaced in the verdict's model scores so callers can distinguish "all
// agree it's real" from "nothing usable ran".
package ensemble

import (
	"encoding/json"
	"fmt"

	"macroblock/internal/score"
)

// NoDetectorsMessage is the explicit error carried by a verdict produced
// without any usable detector.
const NoDetectorsMessage = "no detectors available"

// ModelScore is one entry in a verdict's model score map: either a
// detector's fake probability or the error that excluded it from the vote.
type ModelScore struct {
	FakeProbability float64
	Err             string
}

// MarshalJSON renders a bare number for successful detectors and an
// {"error": ...} object for failed ones, matching the wire format callers
// consume.
func (m ModelScore) MarshalJSON() ([]byte, error) {
	if m.Err != "" {
		return json.Marshal(map[string]string{"error": m.Err})
	}
	return json.Marshal(m.FakeProbability)
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (m *ModelScore) UnmarshalJSON(data []byte) error {
	var probability float64
	if err := json.Unmarshal(data, &probability); err == nil {
		m.FakeProbability = probability
		m.Err = ""
		return nil
	}
	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &failure); err != nil {
		return fmt.Errorf("model score: %w", err)
	}
	m.Err = failure.Error
	return nil
}

// Verdict is the final externally-visible result for single-item detection.
type Verdict struct {
	IsFake      bool                  `json:"is_fake"`
	Confidence  float64               `json:"confidence"`
	ModelScores map[string]ModelScore `json:"model_scores"`
	Detailed    []score.Detection     `json:"detailed_predictions"`
	Error       string                `json:"error,omitempty"`
}

// MeanFakeProbability averages fake probability over the detectors that
// voted. Zero when none did.
func (v Verdict) MeanFakeProbability() float64 {
	if len(v.Detailed) == 0 {
		return 0
	}
	var sum float64
	for _, det := range v.Detailed {
		sum += det.FakeProbability
	}
	return sum / float64(len(v.Detailed))
}

// Aggregate runs a majority vote over the supplied detections. failures maps
// detector names to the error that kept them out of the vote; entries are
// recorded in the verdict's model scores without aborting aggregation.
//
// An exact tie resolves to real: on an ambiguous ensemble the gateway does
// not flag. Zero usable detectors yields a well-formed verdict carrying
// NoDetectorsMessage rather than an error return.
func Aggregate(scores []score.Detection, failures map[string]string) Verdict {
	modelScores := make(map[string]ModelScore, len(scores)+len(failures))
	for name, message := range failures {
		modelScores[name] = ModelScore{Err: message}
	}

	detailed := make([]score.Detection, 0, len(scores))
	detailed = append(detailed, scores...)

	if len(scores) == 0 {
		return Verdict{
			IsFake:      false,
			Confidence:  0,
			ModelScores: modelScores,
			Detailed:    detailed,
			Error:       NoDetectorsMessage,
		}
	}

	fakeVotes := 0
	var confidenceSum float64
	for _, det := range scores {
		if det.IsFake {
			fakeVotes++
		}
		confidenceSum += det.Confidence
		modelScores[det.DetectorName] = ModelScore{FakeProbability: det.FakeProbability}
	}

	return Verdict{
		IsFake:      fakeVotes > len(scores)/2,
		Confidence:  confidenceSum / float64(len(scores)),
		ModelScores: modelScores,
		Detailed:    detailed,
	}
}

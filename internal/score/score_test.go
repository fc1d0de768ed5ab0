package score_test

import (
	"errors"
	"math"
	"testing"

	"macroblock/internal/score"
	"macroblock/internal/services"
)

func floatPtr(v float64) *float64 { return &v }

func TestNormalizeDirect(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionDirect}

	det, err := n.Normalize("clip-probe", score.RawOutput{FakeProbability: floatPtr(0.82), ProcessingTimeMS: 12.5})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if !det.IsFake {
		t.Fatal("expected fake verdict at 0.82")
	}
	if det.FakeProbability != 0.82 {
		t.Fatalf("fake probability = %v", det.FakeProbability)
	}
	if det.Confidence != 0.82 {
		t.Fatalf("confidence should equal fake probability for fake verdicts, got %v", det.Confidence)
	}
	if det.ProcessingTimeMS != 12.5 {
		t.Fatalf("processing time not passed through: %v", det.ProcessingTimeMS)
	}
}

func TestNormalizeConfidenceReflectsPredictedClass(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionDirect}

	det, err := n.Normalize("clip-probe", score.RawOutput{FakeProbability: floatPtr(0.2)})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if det.IsFake {
		t.Fatal("expected real verdict at 0.2")
	}
	if got, want := det.Confidence, 0.8; math.Abs(got-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", got, want)
	}
}

func TestNormalizeSoftmaxFakeIndexZero(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 0}

	det, err := n.Normalize("genconvit", score.RawOutput{Probabilities: []float64{0.9, 0.1}})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if !det.IsFake || det.FakeProbability != 0.9 {
		t.Fatalf("expected fake at 0.9, got %+v", det)
	}
}

func TestNormalizeSoftmaxFakeIndexOne(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 1}

	det, err := n.Normalize("npr-resnet", score.RawOutput{Probabilities: []float64{0.9, 0.1}})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if det.IsFake {
		t.Fatal("expected real verdict when fake class holds 0.1")
	}
	if det.FakeProbability != 0.1 {
		t.Fatalf("fake probability = %v, want 0.1", det.FakeProbability)
	}
}

func TestNormalizeRejectsBadDistribution(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 1}

	if _, err := n.Normalize("npr-resnet", score.RawOutput{Probabilities: []float64{0.7, 0.7}}); !errors.Is(err, services.ErrInvalidScore) {
		t.Fatalf("expected invalid score for sum 1.4, got %v", err)
	}
	if _, err := n.Normalize("npr-resnet", score.RawOutput{Probabilities: []float64{0.5}}); !errors.Is(err, services.ErrInvalidScore) {
		t.Fatalf("expected invalid score for one-class output, got %v", err)
	}
	if _, err := n.Normalize("npr-resnet", score.RawOutput{Probabilities: []float64{-0.1, 1.1}}); !errors.Is(err, services.ErrInvalidScore) {
		t.Fatalf("expected invalid score for negative probability, got %v", err)
	}
}

func TestNormalizeToleratesFloatDrift(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 1}

	det, err := n.Normalize("npr-resnet", score.RawOutput{Probabilities: []float64{0.3004, 0.6999}})
	if err != nil {
		t.Fatalf("distribution within 1e-3 of 1 should pass: %v", err)
	}
	if sum := det.FakeProbability + det.RealProbability(); math.Abs(sum-1) > 1e-6 {
		t.Fatalf("canonical probabilities sum to %v, want 1", sum)
	}
}

func TestNormalizeRejectsMissingKeys(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionDirect}
	if _, err := n.Normalize("clip-probe", score.RawOutput{}); !errors.Is(err, services.ErrInvalidScore) {
		t.Fatalf("expected invalid score for missing value, got %v", err)
	}
}

func TestNormalizeRejectsBadFakeIndex(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 2}
	if _, err := n.Normalize("genconvit", score.RawOutput{Probabilities: []float64{0.5, 0.5}}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for index 2, got %v", err)
	}
}

func TestNormalizeThresholdBoundary(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionDirect, Threshold: 0.7}

	det, err := n.Normalize("clip-probe", score.RawOutput{FakeProbability: floatPtr(0.7)})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if !det.IsFake {
		t.Fatal("value equal to threshold should flag fake")
	}

	det, err = n.Normalize("clip-probe", score.RawOutput{FakeProbability: floatPtr(0.69)})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if det.IsFake {
		t.Fatal("value below threshold should stay real")
	}
}

func TestNormalizeRoundTripSum(t *testing.T) {
	n := score.Normalizer{Convention: score.ConventionSoftmax, FakeLabelIndex: 0}
	for _, probs := range [][]float64{
		{0.0, 1.0},
		{0.25, 0.75},
		{0.5, 0.5},
		{0.9995, 0.0005},
	} {
		det, err := n.Normalize("genconvit", score.RawOutput{Probabilities: probs})
		if err != nil {
			t.Fatalf("Normalize(%v) returned error: %v", probs, err)
		}
		if sum := det.FakeProbability + det.RealProbability(); math.Abs(sum-1) > 1e-6 {
			t.Fatalf("probabilities for %v sum to %v, want 1", probs, sum)
		}
		if det.Confidence < 0 || det.Confidence > 1 || math.IsNaN(det.Confidence) {
			t.Fatalf("confidence out of range for %v: %v", probs, det.Confidence)
		}
	}
}

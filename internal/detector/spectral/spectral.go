// Package spectral scores images by the statistics of their residual noise
// plane.
//
// Camera sensors leave a dense, nearly unbiased noise floor in the lowest
// luminance bit. Generative models and heavy post-processing produce
// residuals that are too clean, too skewed, or too regular instead. The
// detector measures three deviations from the natural-noise expectation
// (bit balance, transition rate, adjacent-pair correlation) and blends them
// into a fake probability. Like the metadata detector, this is a prior for
// the ensemble, not a verdict on its own.
package spectral

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"macroblock/internal/detector"
	"macroblock/internal/media"
	"macroblock/internal/score"
)

// Name identifies the built-in residual-statistics detector.
const Name = "spectral"

// Blend weights for the three anomaly measures. The transition rate is the
// strongest tell in practice, so it carries the largest share.
const (
	uniformityWeight = 0.3
	transitionWeight = 0.4
	biasWeight       = 0.3
)

// Stats holds the residual measurements for one image.
type Stats struct {
	// Samples is the number of residual bits analyzed.
	Samples int
	// Uniformity is 1.0 for a perfect 50/50 bit balance, 0.0 for a
	// constant residual.
	Uniformity float64
	// Transitions is the rate of bit flips between adjacent pixels.
	// Natural noise sits near 0.5.
	Transitions float64
	// FirstOrderBias is the fraction of adjacent pairs keeping the same
	// bit. Natural noise sits near 0.5; generators over-correlate.
	FirstOrderBias float64
	// AnomalyScore blends the three deviations into [0, 1].
	AnomalyScore float64
}

// Detector implements the residual-statistics model.
type Detector struct {
	normalizer score.Normalizer
}

// New builds the detector with the default decision boundary.
func New() *Detector {
	return &Detector{
		normalizer: score.Normalizer{
			Convention: score.ConventionDirect,
			Threshold:  score.DefaultThreshold,
		},
	}
}

// Name implements detector.Detector.
func (d *Detector) Name() string { return Name }

// Modality implements detector.Detector.
func (d *Detector) Modality() media.Kind { return media.KindImage }

// Load implements detector.Detector. There are no weights to load.
func (d *Detector) Load(context.Context) error { return nil }

// Unload implements detector.Detector.
func (d *Detector) Unload(context.Context) error { return nil }

// Infer decodes the image and scores its residual statistics.
func (d *Detector) Infer(_ context.Context, item detector.Item) (score.Detection, error) {
	start := time.Now()
	img, _, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		return score.Detection{}, fmt.Errorf("detector %s: decode %s: %w", Name, item.Path, err)
	}

	stats := Analyze(img)
	raw := score.RawOutput{
		FakeProbability:  &stats.AnomalyScore,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	return d.normalizer.Normalize(Name, raw)
}

// Analyze measures the residual noise plane of the image.
func Analyze(img image.Image) Stats {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	total := width * height
	if total < 2 {
		return Stats{Samples: total, Uniformity: 1, Transitions: 0.5, FirstOrderBias: 0.5}
	}

	residual := make([]byte, 0, total)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			residual = append(residual, byte(luma&1))
		}
	}

	ones := 0
	transitions := 0
	consistentPairs := 0
	for i, bit := range residual {
		if bit == 1 {
			ones++
		}
		if i == 0 {
			continue
		}
		if bit != residual[i-1] {
			transitions++
		} else {
			consistentPairs++
		}
	}

	stats := Stats{Samples: total}
	pairs := total - 1
	stats.Transitions = float64(transitions) / float64(pairs)
	stats.FirstOrderBias = float64(consistentPairs) / float64(pairs)

	expected := float64(total) * 0.5
	deviation := math.Abs(float64(ones)-expected) / expected
	stats.Uniformity = 1 - math.Min(deviation*2, 1)

	uniformityAnomaly := 1 - stats.Uniformity
	transitionAnomaly := math.Min(math.Abs(stats.Transitions-0.5)*2, 1)
	biasAnomaly := math.Min(math.Abs(stats.FirstOrderBias-0.5)*2, 1)
	stats.AnomalyScore = uniformityWeight*uniformityAnomaly +
		transitionWeight*transitionAnomaly +
		biasWeight*biasAnomaly
	return stats
}

package temporal

// VideoVerdict is the video-level decision produced from a frame sequence
// and its consistency analysis. The gateway layers model scores and the full
// analysis on top when building the wire response.
type VideoVerdict struct {
	IsFake         bool    `json:"is_fake"`
	Confidence     float64 `json:"confidence"`
	FakeFrameRatio float64 `json:"fake_frame_ratio"`
	FramesAnalyzed int     `json:"frames_analyzed"`
	Method         string  `json:"method"`
}

// Aggregator blends per-frame predictions into a video verdict. The zero
// value uses the package defaults.
type Aggregator struct {
	// MeanWeight and PeakWeight blend sustained and peak suspicious signal.
	MeanWeight float64
	PeakWeight float64
	// FlickerBonus is added to confidence when the analysis detected
	// flicker; localized manipulation often produces visible flicker.
	FlickerBonus float64
}

// NewAggregator returns an aggregator with the package defaults.
func NewAggregator() Aggregator {
	return Aggregator{
		MeanWeight:   DefaultMeanWeight,
		PeakWeight:   DefaultPeakWeight,
		FlickerBonus: DefaultFlickerBonus,
	}
}

func (g Aggregator) effective() Aggregator {
	if g.MeanWeight <= 0 {
		g.MeanWeight = DefaultMeanWeight
	}
	if g.PeakWeight <= 0 {
		g.PeakWeight = DefaultPeakWeight
	}
	if g.FlickerBonus < 0 {
		g.FlickerBonus = DefaultFlickerBonus
	}
	return g
}

// AggregateVideo combines frame predictions and their consistency analysis.
//
// Confidence blends mean and peak fake probability, discounted by the
// consistency score so noisy sequences cannot claim certainty, plus the
// flicker bonus, clamped to [0,1]. The verdict flags fake when EITHER the
// fake-frame ratio or the blended confidence clears 0.5; there is no
// symmetric real override. That asymmetry biases toward flagging and is
// intentional.
func (g Aggregator) AggregateVideo(frames []FramePrediction, analysis Analysis) VideoVerdict {
	g = g.effective()

	if len(frames) == 0 {
		return VideoVerdict{Method: MethodNoFrames}
	}

	fakeFrames := 0
	var probSum, probMax float64
	for _, frame := range frames {
		if frame.IsFake {
			fakeFrames++
		}
		probSum += frame.FakeProbability
		if frame.FakeProbability > probMax {
			probMax = frame.FakeProbability
		}
	}
	count := float64(len(frames))
	fakeRatio := float64(fakeFrames) / count
	probMean := probSum / count

	confidence := (probMean*g.MeanWeight + probMax*g.PeakWeight) * analysis.ConsistencyScore
	if analysis.FlickerDetected {
		confidence += g.FlickerBonus
	}
	confidence = clamp01(confidence)

	return VideoVerdict{
		IsFake:         fakeRatio > 0.5 || confidence > 0.5,
		Confidence:     confidence,
		FakeFrameRatio: fakeRatio,
		FramesAnalyzed: len(frames),
		Method:         MethodTemporal,
	}
}

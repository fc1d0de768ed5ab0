package detector

import (
	"context"

	"macroblock/internal/media"
	"macroblock/internal/score"
)

// Item is the unit of work handed to a detector: one image, one sampled
// video frame, or one audio clip.
type Item struct {
	// Path names the source file for logging and error messages. For
	// sampled video frames it points at the extracted frame, not the
	// container.
	Path string
	// Data is the raw payload the model consumes.
	Data []byte
}

// Detector is one deepfake model behind a uniform lifecycle. Implementations
// must be safe for concurrent Infer calls once Load has returned.
type Detector interface {
	// Name uniquely identifies the detector within a registry.
	Name() string
	// Modality declares which evidence kind the detector scores.
	Modality() media.Kind
	// Load prepares the detector for inference. Loading twice is a no-op.
	Load(ctx context.Context) error
	// Infer scores a single item.
	Infer(ctx context.Context, item Item) (score.Detection, error)
	// Unload releases model resources. Safe to call on an unloaded detector.
	Unload(ctx context.Context) error
}

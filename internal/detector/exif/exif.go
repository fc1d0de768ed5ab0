// Package exif scores images by their embedded metadata.
//
// Generation tools routinely stamp their names into EXIF/XMP fields
// (Software, CreatorTool) or declare the IPTC trainedAlgorithmicMedia
// source type, while camera originals carry maker and model tags. Neither
// signal is conclusive on its own, so this detector emits a prior for the
// ensemble rather than a hard verdict: strong fake on a generator
// fingerprint, lean real on camera evidence, near-neutral when the
// metadata has been stripped.
package exif

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/bep/imagemeta"

	"macroblock/internal/detector"
	"macroblock/internal/media"
	"macroblock/internal/score"
)

// Name identifies the built-in metadata detector.
const Name = "exif"

// Priors emitted for the three metadata situations. The neutral prior sits
// just under the decision boundary: stripped metadata is routine for
// legitimate web images, so it must never vote fake by itself.
const (
	probGenerator = 0.95
	probCamera    = 0.15
	probNeutral   = 0.45
)

// generatorKeywords are tool names that only appear in synthetic or edited
// output. Matched case-insensitively as substrings of the tool fields.
var generatorKeywords = []string{
	"stable diffusion",
	"sdxl",
	"midjourney",
	"dall-e",
	"dall·e",
	"openai",
	"firefly",
	"novelai",
	"comfyui",
	"automatic1111",
	"invokeai",
	"leonardo.ai",
	"runwayml",
	"deepfacelab",
	"faceswap",
	"heygen",
	"synthesia",
	"ideogram",
	"flux.1",
	"recraft",
	"this person does not exist",
}

// trainedAlgorithmicMedia is the IPTC digital source type for AI-generated
// content, declared by standards-following generators.
const trainedAlgorithmicMedia = "trainedalgorithmicmedia"

// Detector implements the metadata pre-signal model.
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

// Infer extracts metadata from the image bytes and emits the matching prior.
func (d *Detector) Infer(_ context.Context, item detector.Item) (score.Detection, error) {
	start := time.Now()
	meta := extract(item.Data)
	prob := scoreMetadata(meta)

	raw := score.RawOutput{
		FakeProbability:  &prob,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	return d.normalizer.Normalize(Name, raw)
}

// fields holds the metadata values the detector inspects.
type fields struct {
	software          string
	creatorTool       string
	cameraMake        string
	cameraModel       string
	digitalSourceType string
	freeText          []string
	found             bool
}

func scoreMetadata(meta fields) float64 {
	if _, hit := meta.generatorHit(); hit {
		return probGenerator
	}
	if meta.cameraEvidence() {
		return probCamera
	}
	return probNeutral
}

// generatorHit reports the first generator fingerprint found in the
// metadata, if any.
func (f fields) generatorHit() (string, bool) {
	if strings.Contains(strings.ToLower(f.digitalSourceType), trainedAlgorithmicMedia) {
		return trainedAlgorithmicMedia, true
	}
	haystacks := append([]string{f.software, f.creatorTool, f.cameraMake, f.cameraModel}, f.freeText...)
	for _, value := range haystacks {
		if value == "" {
			continue
		}
		lower := strings.ToLower(value)
		for _, keyword := range generatorKeywords {
			if strings.Contains(lower, keyword) {
				return keyword, true
			}
		}
	}
	return "", false
}

// cameraEvidence reports whether the metadata names a capture device.
func (f fields) cameraEvidence() bool {
	return strings.TrimSpace(f.cameraMake) != "" || strings.TrimSpace(f.cameraModel) != ""
}

// wantedTags maps (source, tag-name) to true for every tag the detector
// inspects.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Software":         true,
		"Make":             true,
		"Model":            true,
		"ImageDescription": true,
		"UserComment":      true,
	},
	imagemeta.XMP: {
		"CreatorTool":       true,
		"DigitalSourceType": true,
		"Credit":            true,
		"Description":       true,
	},
	imagemeta.IPTC: {
		"Credit":          true,
		"Source":          true,
		"CopyrightNotice": true,
	},
}

// extract parses the metadata fields from raw image bytes. It never fails:
// unreadable or absent metadata yields the zero value with found=false.
func extract(data []byte) fields {
	if len(data) == 0 {
		return fields{}
	}

	meta := fields{}
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			value := tagValueString(ti.Value)
			if value == "" {
				return nil
			}
			meta.found = true
			switch {
			case ti.Source == imagemeta.EXIF && ti.Tag == "Software":
				meta.software = value
			case ti.Source == imagemeta.EXIF && ti.Tag == "Make":
				meta.cameraMake = value
			case ti.Source == imagemeta.EXIF && ti.Tag == "Model":
				meta.cameraModel = value
			case ti.Source == imagemeta.XMP && ti.Tag == "CreatorTool":
				meta.creatorTool = value
			case ti.Source == imagemeta.XMP && ti.Tag == "DigitalSourceType":
				meta.digitalSourceType = value
			default:
				meta.freeText = append(meta.freeText, value)
			}
			return nil
		},
	})
	if err != nil {
		return fields{}
	}
	return meta
}

// tagValueString extracts a string from a tag value. XMP values may arrive
// as string slices from alt/seq lists.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

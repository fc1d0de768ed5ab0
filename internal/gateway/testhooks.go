package gateway

import (
	"context"

	"macroblock/internal/media"
)

var (
	probeVideo    = media.Probe
	extractFrames = media.ExtractFrames
)

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (media.ProbeResult, error)) func() {
	previous := probeVideo
	probeVideo = fn
	return func() {
		probeVideo = previous
	}
}

// SetExtractFramesForTests overrides the ffmpeg frame sampler during tests.
func SetExtractFramesForTests(fn func(context.Context, string, string, string, int, int) ([]media.Frame, error)) func() {
	previous := extractFrames
	extractFrames = fn
	return func() {
		extractFrames = previous
	}
}

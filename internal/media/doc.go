// Package media identifies and prepares evidence files for analysis.
//
// Kind detection sniffs magic bytes via the filetype library and falls back
// to the file extension, so renamed files still route to the right pipeline.
// The ffprobe wrapper exposes the container metadata the gateway reports
// (duration, dimensions, frame rate), and the ffmpeg helper samples video
// frames at a fixed stride for per-frame inference.
//
// Fingerprinting covers both exact identity (SHA-256) and perceptual
// identity (difference hash), which backs the verdict cache: re-encoded or
// lightly resized copies of an already-analyzed image hash within a small
// Hamming distance of the original.
package media

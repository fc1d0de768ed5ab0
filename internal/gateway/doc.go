// Package gateway runs media evidence through the detection pipeline.
//
// The Engine accepts uploaded bytes or local paths, routes them by media kind
// (image, video, audio), fans each item out to the registered detectors for
// that modality, and aggregates the canonical scores into a single verdict.
// Video goes through the full frame pipeline: ffprobe inspection, ffmpeg frame
// sampling, per-frame ensembles, temporal consistency analysis, and an
// optional hybrid blend with whole-video detectors.
//
// Around the core decision the Engine layers the operational concerns: verdict
// replay from the history store for exact digests and perceptually similar
// images, history persistence for every fresh analysis, reliability marking,
// and push notifications for confident fake verdicts. All of those degrade
// gracefully; a missing store or notifier never blocks an analysis.
//
// Add new modalities by extending media.Kind, registering detectors for it,
// and teaching Analyze how to dispatch; this package is the authoritative home
// for that routing logic.
package gateway

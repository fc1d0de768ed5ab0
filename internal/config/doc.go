// Package config loads, normalizes, and validates macroblock configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MACROBLOCK_NTFY_TOPIC. The Config type centralizes every knob the daemon
// and CLI need, so work directories, detector manifests, and analysis
// thresholds are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package detector defines the model interface and the runtime registry.
//
// A Detector wraps one deepfake model, local or remote, behind a uniform
// load/infer/unload lifecycle. The registry owns the set of registered
// detectors, guards it with a RWMutex so manifests can be reloaded while
// requests are in flight, and applies the inference timeout ceiling so a
// hung model service degrades into a per-model failure instead of stalling
// the whole analysis.
//
// Detectors arrive from two sources: YAML manifests in the configured
// manifest directory describe remote model services, and the built-in local
// detectors register themselves at daemon startup. Both kinds are treated
// identically once registered.
package detector

package detector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"macroblock/internal/logging"
	"macroblock/internal/media"
	"macroblock/internal/score"
	"macroblock/internal/services"
)

// DefaultInferTimeout caps a single inference call when the config does not
// override it.
const DefaultInferTimeout = 30 * time.Second

// Registry holds the active detector set. Construct one per daemon; there is
// no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
	loaded    map[string]bool
	loadErrs  map[string]string

	logger  *slog.Logger
	timeout time.Duration
}

// DetectorHealth reports the runtime state of one registered detector.
type DetectorHealth struct {
	Modality media.Kind `json:"modality"`
	Loaded   bool       `json:"loaded"`
	Device   string     `json:"device,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// RegistryHealth summarizes the registry for the readiness probe.
type RegistryHealth struct {
	RegisteredCount int                       `json:"registered_count"`
	AllLoaded       bool                      `json:"all_loaded"`
	Detectors       map[string]DetectorHealth `json:"detectors"`
}

// NewRegistry builds an empty registry. A nil logger disables logging; a
// non-positive timeout falls back to DefaultInferTimeout.
func NewRegistry(logger *slog.Logger, timeout time.Duration) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultInferTimeout
	}
	return &Registry{
		detectors: make(map[string]Detector),
		loaded:    make(map[string]bool),
		loadErrs:  make(map[string]string),
		logger:    logger.With(logging.String(logging.FieldComponent, "detector-registry")),
		timeout:   timeout,
	}
}

// Register adds a detector, replacing any existing registration under the
// same name. Replacement is logged because it usually means two manifests
// collide.
func (r *Registry) Register(d Detector) {
	if d == nil {
		return
	}
	name := d.Name()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[name]; exists {
		r.logger.Warn("replacing registered detector",
			logging.String("detector", name),
			logging.String("modality", d.Modality().String()))
	}
	r.detectors[name] = d
	delete(r.loaded, name)
	delete(r.loadErrs, name)
}

// Get looks up a detector by name.
func (r *Registry) Get(name string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	return d, ok
}

// Names returns the registered detector names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.detectors))
	for name := range r.detectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByModality returns the detectors scoring the given kind, ordered by name.
func (r *Registry) ByModality(kind media.Kind) []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []Detector
	for _, d := range r.detectors {
		if d.Modality() == kind {
			matched = append(matched, d)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name() < matched[j].Name()
	})
	return matched
}

// LoadAll loads every registered detector and returns per-detector success.
// One failing load never aborts the rest; failures surface in Health and in
// the returned map.
func (r *Registry) LoadAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	for _, name := range r.Names() {
		d, ok := r.Get(name)
		if !ok {
			continue
		}
		err := d.Load(ctx)

		r.mu.Lock()
		if err != nil {
			r.loaded[name] = false
			r.loadErrs[name] = err.Error()
		} else {
			r.loaded[name] = true
			delete(r.loadErrs, name)
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Error("detector load failed",
				logging.String("detector", name),
				logging.Error(err))
			results[name] = false
			continue
		}
		r.logger.Info("detector loaded",
			logging.String("detector", name),
			logging.String("modality", d.Modality().String()))
		results[name] = true
	}
	return results
}

// UnloadAll tears down every detector, best effort.
func (r *Registry) UnloadAll(ctx context.Context) {
	for _, name := range r.Names() {
		d, ok := r.Get(name)
		if !ok {
			continue
		}
		if err := d.Unload(ctx); err != nil {
			r.logger.Warn("detector unload failed",
				logging.String("detector", name),
				logging.Error(err))
		}
		r.mu.Lock()
		delete(r.loaded, name)
		r.mu.Unlock()
	}
}

// Health reports the registry state for the readiness probe. AllLoaded is
// false until every registered detector has loaded successfully.
func (r *Registry) Health() RegistryHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := RegistryHealth{
		RegisteredCount: len(r.detectors),
		AllLoaded:       len(r.detectors) > 0,
		Detectors:       make(map[string]DetectorHealth, len(r.detectors)),
	}
	for name, d := range r.detectors {
		entry := DetectorHealth{
			Modality: d.Modality(),
			Loaded:   r.loaded[name],
			Error:    r.loadErrs[name],
		}
		if dev, ok := d.(interface{ Device() string }); ok {
			entry.Device = dev.Device()
		}
		if !entry.Loaded {
			health.AllLoaded = false
		}
		health.Detectors[name] = entry
	}
	return health
}

// Infer runs one detector against an item under the registry's timeout
// ceiling. A deadline hit is reported as a timeout failure so the ensemble
// can exclude the detector from the vote.
func (r *Registry) Infer(ctx context.Context, d Detector, item Item) (score.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detection, err := d.Infer(ctx, item)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return score.Detection{}, services.Wrap(services.ErrTimeout, "detector", "infer", d.Name()+" timed out", err)
		}
		return score.Detection{}, err
	}
	return detection, nil
}

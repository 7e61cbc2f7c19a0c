// Package layers validates visualisation layer definitions against
// the loaded datasets and builds plot-ready figure payloads.
package layers

import (
	"fmt"
	"sync"

	"github.com/tau-omega/stadsmonitor/internal/models"
	"github.com/tau-omega/stadsmonitor/internal/store"
)

// ShapeSource resolves region sets for map levels. The regions.Loader
// satisfies it.
type ShapeSource interface {
	LoadLevel(level models.RegionLevel) (*models.RegionSet, error)
}

// Registry holds the saved layers per figure plus the validation
// report of the last save attempt.
type Registry struct {
	mu      sync.RWMutex
	figures map[string][]models.LayerSpec
	reports map[string]models.ValidationReport

	store  *store.Store
	shapes ShapeSource
}

func NewRegistry(s *store.Store, shapes ShapeSource) *Registry {
	return &Registry{
		figures: make(map[string][]models.LayerSpec),
		reports: make(map[string]models.ValidationReport),
		store:   s,
		shapes:  shapes,
	}
}

// Save validates the spec and, when it produces no errors, stores it
// on its figure. Replace allows overwriting a layer with the same
// name (editing); otherwise a name collision is an error.
func (r *Registry) Save(spec models.LayerSpec, replace bool) models.ValidationReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.Name == "" {
		spec.Name = models.DefaultLayerName
	}

	report := r.validate(&spec, replace)
	r.reports[spec.Figure] = report
	if !report.OK() {
		return report
	}

	existing := r.figures[spec.Figure]
	for i, l := range existing {
		if l.Name == spec.Name {
			existing[i] = spec
			return report
		}
	}
	r.figures[spec.Figure] = append(existing, spec)
	return report
}

// Delete removes a named layer from a figure.
func (r *Registry) Delete(figure, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	specs := r.figures[figure]
	for i, l := range specs {
		if l.Name == name {
			r.figures[figure] = append(specs[:i], specs[i+1:]...)
			return true
		}
	}
	return false
}

// Layers returns the saved layers of a figure.
func (r *Registry) Layers(figure string) []models.LayerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.LayerSpec(nil), r.figures[figure]...)
}

// Report returns the validation report of the figure's last save.
func (r *Registry) Report(figure string) models.ValidationReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reports[figure]
}

// MapLevel is the level of the figure's first map layer, which every
// further layer has to match.
func (r *Registry) MapLevel(figure string) (models.RegionLevel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mapLevelLocked(figure)
}

func (r *Registry) mapLevelLocked(figure string) (models.RegionLevel, bool) {
	for _, l := range r.figures[figure] {
		if l.IsMap() && l.MapLevel != "" {
			level, _ := models.ParseRegionLevel(l.MapLevel)
			return level, true
		}
	}
	return "", false
}

func (r *Registry) dataset(name string) (*models.Dataset, error) {
	ds, ok := r.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("dataset %q does not exist", name)
	}
	return ds, nil
}

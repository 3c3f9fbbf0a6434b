package platforms

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Registry maps a platform identifier to its adapter
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry from adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for platform
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, platform)
	}
	return a, nil
}

// Platforms lists the registered platforms
func (r *Registry) Platforms() []models.Platform {
	platforms := make([]models.Platform, 0, len(r.adapters))
	for _, p := range models.Platforms {
		if _, ok := r.adapters[p]; ok {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

package providers

import (
	"fmt"
	"sort"
	"sync"

	"omnigate/pkg/models"
)

// Registry maps provider identifiers to adapters. Dispatch is typed; the
// gateway never switches on provider names itself.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	// scopes holds per-provider default-scope overrides from configuration.
	scopes map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		scopes:   map[string][]string{},
	}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.ID()] = a
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return a, nil
}

// OverrideScopes replaces the default scopes requested for one provider.
func (r *Registry) OverrideScopes(id string, scopes []string) {
	r.mu.Lock()
	r.scopes[id] = append([]string(nil), scopes...)
	r.mu.Unlock()
}

// ScopesFor returns the configured override or the adapter's defaults.
func (r *Registry) ScopesFor(a Adapter) []string {
	r.mu.RLock()
	override, ok := r.scopes[a.ID()]
	r.mu.RUnlock()
	if ok {
		return override
	}
	return a.DefaultScopes()
}

func (r *Registry) List() []models.ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ProviderInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		info := models.ProviderInfo{
			ID:         a.ID(),
			Operations: a.Operations(),
		}
		if override, ok := r.scopes[a.ID()]; ok {
			info.DefaultScopes = override
		} else {
			info.DefaultScopes = a.DefaultScopes()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

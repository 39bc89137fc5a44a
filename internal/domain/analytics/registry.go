// Package analytics derives per-participant contribution scores from a
// frozen causal graph. Every dimension is computed from graph topology
// and timestamps alone, so two verifiers holding the same graph always
// produce the same scores.
package analytics

import (
	"arbiter-backend/internal/domain/dkg"
	"arbiter-backend/internal/errors"
)

// DimensionFunc computes a custom dimension for one participant. The
// contract is a value in [0, 1]; outputs are bounded to that range
// before scaling.
type DimensionFunc func(g *dkg.Graph, participant string) float64

// Registry holds named custom dimensions. Registration order is
// preserved: custom dimensions are appended to every score vector in
// the order they were registered.
type Registry struct {
	names []string
	funcs map[string]DimensionFunc
}

// NewRegistry returns an empty dimension registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]DimensionFunc)}
}

// Register adds a named dimension. Standard dimension names and
// duplicates are rejected as configuration errors.
func (r *Registry) Register(name string, fn DimensionFunc) error {
	if name == "" || fn == nil {
		return errors.Config("INVALID_DIMENSION", "dimension needs a name and a function").
			WithOperation("Register").Build()
	}
	for _, std := range StandardDimensions() {
		if name == std {
			return errors.Config("RESERVED_DIMENSION", "name collides with a standard dimension").
				WithOperation("Register").WithResource(name).Build()
		}
	}
	if _, exists := r.funcs[name]; exists {
		return errors.Config("DUPLICATE_DIMENSION", "dimension already registered").
			WithOperation("Register").WithResource(name).Build()
	}
	r.names = append(r.names, name)
	r.funcs[name] = fn
	return nil
}

// Names returns the registered dimension names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// resolve maps enabled names to their functions, rejecting unknowns.
func (r *Registry) resolve(enabled []string) ([]string, []DimensionFunc, error) {
	names := make([]string, 0, len(enabled))
	funcs := make([]DimensionFunc, 0, len(enabled))
	for _, name := range r.names {
		if !contains(enabled, name) {
			continue
		}
		names = append(names, name)
		funcs = append(funcs, r.funcs[name])
	}
	for _, want := range enabled {
		if !contains(names, want) {
			return nil, nil, errors.Config("UNKNOWN_DIMENSION", "dimension is not registered").
				WithOperation("resolve").WithResource(want).Build()
		}
	}
	return names, funcs, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

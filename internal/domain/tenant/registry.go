package tenant

import (
	"fmt"
	"sort"
)

// Registry holds one value per tenant, built once at startup and read-only afterwards.
//
// It is what replaces looking up per-tenant storage clients lazily from a global: whoever
// wires the app builds every tenant's value up front and hands the Registry around.
type Registry[T any] struct {
	byTenant map[Id]T
}

// NewRegistry builds a Registry by calling build for every given tenant.
//
// Fails on the first error returned by build.
func NewRegistry[T any](tenants []Id, build func(Id) (T, error)) (*Registry[T], error) {
	byTenant := make(map[Id]T, len(tenants))
	for _, t := range tenants {
		v, err := build(t)
		if err != nil {
			return nil, fmt.Errorf("could not build for tenant [%v]: %w", t, err)
		}
		byTenant[t] = v
	}
	return &Registry[T]{byTenant: byTenant}, nil
}

// Get returns the value for the given tenant, or Unknown
func (r *Registry[T]) Get(t Id) (T, error) {
	v, ok := r.byTenant[t]
	if !ok {
		var zero T
		return zero, Unknown{ID: t}
	}
	return v, nil
}

// Tenants returns the registered tenants, sorted
func (r *Registry[T]) Tenants() []Id {
	ids := make([]Id, 0, len(r.byTenant))
	for t := range r.byTenant {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Unknown is returned when a tenant has not been registered
type Unknown struct {
	ID Id
}

func (e Unknown) Error() string {
	return fmt.Sprintf("Unknown tenant [%v]", e.ID)
}

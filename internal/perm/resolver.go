package perm

import (
	"context"
	"time"
)

// Resolver computes the effective permission set for a principal by merging
// direct user grants with grants inherited through active department
// assignments. Admins bypass the grant store entirely.
type Resolver struct {
	store   GrantStore
	catalog *Catalog
	now     func() time.Time
}

// NewResolver constructs a resolver over the given store and catalog.
func NewResolver(store GrantStore, catalog *Catalog) *Resolver {
	return &Resolver{store: store, catalog: catalog, now: time.Now}
}

// Resolve returns the principal's effective permission set. An inactive
// principal resolves to nothing; missing data never fails open.
func (r *Resolver) Resolve(ctx context.Context, principal Principal) (map[Key]struct{}, error) {
	if principal.ID == "" || !principal.Active {
		return map[Key]struct{}{}, nil
	}
	if principal.IsAdmin() {
		return r.catalog.FullSet(), nil
	}

	grants, err := r.store.GrantsForPrincipal(ctx, principal.ID, principal.ActiveDepartments())
	if err != nil {
		return nil, err
	}

	now := r.now()
	set := make(map[Key]struct{})
	for _, g := range grants {
		if !g.Effective(now) {
			continue
		}
		set[g.Permission] = struct{}{}
	}
	return set, nil
}

// HasPermission reports whether the principal's effective set contains key.
// Admins short-circuit to true for any catalog key.
func (r *Resolver) HasPermission(ctx context.Context, principal Principal, key Key) (bool, error) {
	if principal.ID == "" || !principal.Active {
		return false, nil
	}
	if principal.IsAdmin() {
		return r.catalog.Contains(key), nil
	}
	set, err := r.Resolve(ctx, principal)
	if err != nil {
		return false, err
	}
	_, ok := set[key]
	return ok, nil
}

// Catalog exposes the resolver's permission registry.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

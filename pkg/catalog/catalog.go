// Package catalog provides the lookup surfaces lineage extraction consults
// while walking a plan: defining-plan resolution for views, cached-fragment
// resolution for materialized subtrees, and canonical name construction.
// Implementations are read-only from the extractor's point of view.
package catalog

import "github.com/leapstack-labs/traceline/pkg/plan"

// Catalog resolves table identities seen in a plan.
type Catalog interface {
	// ResolveDefiningPlan returns the defining plan for name when it is a
	// view. Base tables return (nil, false) and are treated as lineage
	// endpoints.
	ResolveDefiningPlan(name plan.QualifiedName) (plan.Node, bool)

	// CanonicalName normalizes identifier parts the way the catalog
	// compares them: case-insensitive, default database filled in.
	CanonicalName(parts ...string) plan.QualifiedName
}

// CacheRegistry resolves cached-relation keys to the plans that produced
// them. Keys identify a registration, not a table: two independently
// cached projections of the same base table resolve to two distinct
// defining plans.
type CacheRegistry interface {
	Lookup(key string) (plan.Node, bool)
}

// Chain consults catalogs in order; the first hit wins. CanonicalName
// always comes from the first element.
type Chain []Catalog

// ResolveDefiningPlan implements Catalog.
func (c Chain) ResolveDefiningPlan(name plan.QualifiedName) (plan.Node, bool) {
	for _, cat := range c {
		if node, ok := cat.ResolveDefiningPlan(name); ok {
			return node, true
		}
	}
	return nil, false
}

// CanonicalName implements Catalog.
func (c Chain) CanonicalName(parts ...string) plan.QualifiedName {
	if len(c) > 0 {
		return c[0].CanonicalName(parts...)
	}
	return plan.Name(parts...)
}

// CacheChain consults cache registries in order; the first hit wins.
type CacheChain []CacheRegistry

// Lookup implements CacheRegistry.
func (c CacheChain) Lookup(key string) (plan.Node, bool) {
	for _, reg := range c {
		if node, ok := reg.Lookup(key); ok {
			return node, true
		}
	}
	return nil, false
}

package catalog

import (
	"sync"

	"github.com/leapstack-labs/traceline/pkg/plan"
)

// Memory is an in-memory Catalog and CacheRegistry. Registration is guarded
// for hosts that load definitions concurrently; lookups during extraction
// are read-only.
type Memory struct {
	mu     sync.RWMutex
	views  map[plan.QualifiedName]plan.Node
	caches map[string]plan.Node
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		views:  make(map[plan.QualifiedName]plan.Node),
		caches: make(map[string]plan.Node),
	}
}

// RegisterView stores the defining plan for a view. The name is stored as
// given; callers normalize through CanonicalName or plan.Name first.
func (m *Memory) RegisterView(name plan.QualifiedName, def plan.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[name] = def
}

// RegisterCache stores the defining plan for a cached relation under key.
// Keys are instance identities: registering two caches of identical
// defining SQL under different keys keeps them distinct.
func (m *Memory) RegisterCache(key string, def plan.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[key] = def
}

// ResolveDefiningPlan implements Catalog.
func (m *Memory) ResolveDefiningPlan(name plan.QualifiedName) (plan.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.views[name]
	return def, ok
}

// CanonicalName implements Catalog.
func (m *Memory) CanonicalName(parts ...string) plan.QualifiedName {
	return plan.Name(parts...)
}

// Lookup implements CacheRegistry.
func (m *Memory) Lookup(key string) (plan.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.caches[key]
	return def, ok
}

// Len reports how many definitions are registered, views and caches
// combined. Hosts log it after loading a catalog document.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views) + len(m.caches)
}

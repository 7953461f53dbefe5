package metadata

import (
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	mu       sync.RWMutex
	order    []string
	entities map[string]*Entity
	byRoute  map[string]*Entity
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		byRoute:  make(map[string]*Entity),
	}
}

// Load builds a registry holding the full commerce schema.
func Load() (*Registry, error) {
	reg := NewRegistry()
	for _, e := range Schema() {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds an entity, compiling its rules. Entities are kept in
// registration order so that referenced tables are created first.
func (r *Registry) Register(e *Entity) error {
	for _, rule := range e.Rules {
		if err := rule.Compile(); err != nil {
			return fmt.Errorf("entity %s: %w", e.Name, err)
		}
	}
	sort.SliceStable(e.Rules, func(i, j int) bool {
		return e.Rules[i].Priority < e.Rules[j].Priority
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.Name]; !ok {
		r.order = append(r.order, e.Name)
	}
	r.entities[e.Name] = e
	if e.Route != "" {
		r.byRoute[e.Route] = e
	}
	return nil
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// GetByRoute returns the exposed entity served under the given URL segment, or nil.
func (r *Registry) GetByRoute(route string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byRoute[route]
}

// AllEntities returns all registered entities in registration order.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// ChildrenOf returns exposed entities nested under parent.
func (r *Registry) ChildrenOf(parent string) []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entity
	for _, name := range r.order {
		e := r.entities[name]
		if e.Parent != nil && e.Parent.Entity == parent && e.Route != "" {
			out = append(out, e)
		}
	}
	return out
}

// GetRulesForEntity returns the entity's rules ordered by priority.
func (r *Registry) GetRulesForEntity(name string) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e := r.entities[name]; e != nil {
		return e.Rules
	}
	return nil
}

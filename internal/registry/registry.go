// Package registry holds the complete set of extraction stages and computes
// a valid execution order from their declared dependencies.
//
// A Registry is constructed once per process. Dependency-graph defects
// (cycles, references to unregistered stages, duplicate names) are
// configuration errors surfaced here, at startup, never mid-run.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/freightmind/extractd/internal/stage"
)

// Errors for registry configuration defects.
var (
	ErrCyclicDependency  = errors.New("cyclic stage dependency")
	ErrUnknownDependency = errors.New("dependency on unregistered stage")
	ErrDuplicateStage    = errors.New("stage already registered")
	ErrFrozen            = errors.New("registry is frozen")
)

// Registry is the process-wide stage set. Immutable after the first order
// resolution; safe for concurrent reads thereafter.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]stage.Stage
	order  []string // cached resolution
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{stages: make(map[string]stage.Stage)}
}

// Register adds a stage. Fails on duplicate names or after the registry has
// been frozen by a successful ResolveOrder.
func (r *Registry) Register(s stage.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrFrozen, s.Name())
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("stage name cannot be empty")
	}
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStage, name)
	}
	r.stages[name] = s
	return nil
}

// MustRegister registers a stage and panics on error. For static pipeline
// wiring where a failure is a programming mistake.
func (r *Registry) MustRegister(s stage.Stage) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns a registered stage by name.
func (r *Registry) Get(name string) (stage.Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Names returns all registered stage names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveOrder computes one valid linear execution order via topological
// sort (Kahn's algorithm) over the declared-dependency graph. Ties break
// lexicographically so the order is deterministic across processes.
//
// The first successful resolution freezes the registry.
func (r *Registry) ResolveOrder() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.order != nil {
		out := make([]string, len(r.order))
		copy(out, r.order)
		return out, nil
	}

	// Validate dependency references up front.
	for name, s := range r.stages {
		for _, dep := range s.Dependencies() {
			if _, ok := r.stages[dep]; !ok {
				return nil, fmt.Errorf("%w: stage %q depends on %q", ErrUnknownDependency, name, dep)
			}
			if dep == name {
				return nil, fmt.Errorf("%w: stage %q depends on itself", ErrCyclicDependency, name)
			}
		}
	}

	indegree := make(map[string]int, len(r.stages))
	dependents := make(map[string][]string, len(r.stages))
	for name, s := range r.stages {
		indegree[name] += 0
		for _, dep := range s.Dependencies() {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(r.stages))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		released := false
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(r.stages) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving %v", ErrCyclicDependency, stuck)
	}

	r.order = order
	r.frozen = true

	out := make([]string, len(order))
	copy(out, order)
	return out, nil
}

package rule

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the available rule predicates.
// It provides thread-safe registration and lookup of predicates by kind.
type Registry struct {
	predicates map[Kind]Predicate
	mu         sync.RWMutex
}

// NewRegistry creates a new empty predicate registry.
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[Kind]Predicate),
	}
}

// Register adds a predicate to the registry.
// Returns an error if a predicate with the same kind already exists.
func (r *Registry) Register(p Predicate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.predicates[p.Kind()]; exists {
		return fmt.Errorf("rule type %s already registered", p.Kind())
	}

	r.predicates[p.Kind()] = p
	return nil
}

// Unregister removes a predicate from the registry.
// Returns an error if the kind doesn't exist.
func (r *Registry) Unregister(kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.predicates[kind]; !exists {
		return fmt.Errorf("rule type %s not found", kind)
	}

	delete(r.predicates, kind)
	return nil
}

// Lookup returns the predicate registered for a kind.
func (r *Registry) Lookup(kind Kind) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.predicates[kind]
	return p, ok
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.predicates))
	for k := range r.predicates {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Known reports whether a kind is registered.
func (r *Registry) Known(kind Kind) bool {
	_, ok := r.Lookup(kind)
	return ok
}

// Count returns the number of registered predicates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.predicates)
}

// FactsFor returns the distinct facts read by the recognized rules of the
// given rule-sets, in first-seen order.
func (r *Registry) FactsFor(ruleSets ...RuleSet) []string {
	seen := make(map[string]bool)
	var facts []string

	for _, rs := range ruleSets {
		for _, rl := range rs {
			p, ok := r.Lookup(rl.Kind)
			if !ok {
				continue
			}
			for _, f := range p.Facts() {
				if !seen[f] {
					seen[f] = true
					facts = append(facts, f)
				}
			}
		}
	}

	return facts
}

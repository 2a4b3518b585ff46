package commands

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AshkanYarmoradi/go-snapmink"
)

// AggregateType describes an aggregate the CLI can rebuild. Programs that
// embed the CLI register their own types; the stock binary knows none.
type AggregateType struct {
	// Name is the aggregate type, which is also its stream category.
	Name string

	Factory snapmink.AggregateFactory

	// Events are example values of every event type in the stream.
	Events []interface{}

	// Serializer decodes stored events. Nil means JSON.
	Serializer snapmink.Serializer
}

// Registry maps aggregate type names to their definitions.
type Registry struct {
	mu    sync.RWMutex
	types map[string]AggregateType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]AggregateType)}
}

// Register adds an aggregate type.
func (r *Registry) Register(t AggregateType) error {
	if t.Name == "" {
		return fmt.Errorf("aggregate type name is required")
	}
	if t.Factory == nil {
		return fmt.Errorf("aggregate type %s: factory is required", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("aggregate type %s already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(t AggregateType) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the aggregate type with the given name.
func (r *Registry) Lookup(name string) (AggregateType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package master

import "github.com/wxflow/raceway/internal/kernel/raceactor"

// Factory constructs a fresh Behavior for one actor instance. Domain
// packages register a Factory under their class tag; the kernel never
// knows what a class tag means beyond this lookup.
type Factory func() raceactor.Behavior

// Registry maps configuration class tags to Factories. The zero value is
// usable.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates class with factory. Registering the same class
// twice overwrites the previous factory, matching configuration-driven
// assembly where the last registration wins (useful for test doubles).
func (r *Registry) Register(class string, factory Factory) {
	r.factories[class] = factory
}

// Resolve looks up the factory for class.
func (r *Registry) Resolve(class string) (Factory, bool) {
	f, ok := r.factories[class]
	return f, ok
}

package structure

import (
	"sort"
	"sync"

	"github.com/spaceshipgen/comparator/internal/domain"
)

// BuilderSpec describes an external solver's command and environment.
type BuilderSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Registry is a thread-safe registry of builder specifications.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuilderSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderSpec),
	}
}

// Register adds a builder spec to the registry.
// Returns ErrBuilderUnavailable if a builder with the same name is already registered.
func (r *Registry) Register(spec BuilderSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[spec.Name]; exists {
		return domain.WrapEngineError(
			domain.ErrBuilderUnavailable.Code,
			"builder already registered: "+spec.Name,
			nil,
		)
	}
	r.builders[spec.Name] = spec
	return nil
}

// Get returns the spec for the named builder, or ErrBuilderUnavailable if not found.
func (r *Registry) Get(name string) (BuilderSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.builders[name]
	if !ok {
		return BuilderSpec{}, domain.ErrBuilderUnavailable
	}
	return spec, nil
}

// Builder returns a ProcessBuilder for the named spec.
func (r *Registry) Builder(name string) (*ProcessBuilder, error) {
	spec, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return NewProcessBuilder(spec), nil
}

// List returns all registered builder names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

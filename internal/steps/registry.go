package steps

import (
	"fmt"
	"sync"

	"github.com/ternarybob/investiq/internal/interfaces"
	"github.com/ternarybob/investiq/internal/models"
)

// Registry maps step names to their definitions. Registration happens once
// during startup; lookups happen on every dispatch and execution.
type Registry struct {
	mu   sync.RWMutex
	defs map[models.StepName]interfaces.StepDefinition
}

var _ interfaces.StepRegistry = (*Registry)(nil)

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[models.StepName]interfaces.StepDefinition),
	}
}

// Register adds a step definition. Duplicate names and invalid definitions
// are rejected.
func (r *Registry) Register(def interfaces.StepDefinition) error {
	if !def.Name.IsValid() {
		return fmt.Errorf("unknown step name: %s", def.Name)
	}
	if def.Func == nil {
		return fmt.Errorf("step %s has no function", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("step %s already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get returns the definition for a step name
func (r *Registry) Get(name models.StepName) (interfaces.StepDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered step names
func (r *Registry) Names() []models.StepName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.StepName, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	return names
}

package pipeline

import (
	"fmt"
	"slices"
	"sync"
)

// Registry looks tasks up by name for the command line and for composition.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	aliases map[string]string
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:   make(map[string]*Task),
		aliases: make(map[string]string),
	}
}

// Register adds a task under its name and any aliases.
func (r *Registry) Register(t *Task, aliases ...string) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("cannot register a task without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range append([]string{t.Name}, aliases...) {
		if r.taken(name) {
			return fmt.Errorf("task name %q is already registered", name)
		}
	}

	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	for _, a := range aliases {
		r.aliases[a] = t.Name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, task := r.tasks[name]
	_, alias := r.aliases[name]
	return task || alias
}

// Get returns the task registered under name or alias.
func (r *Registry) Get(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	t, ok := r.tasks[name]
	return t, ok
}

// Aliases returns the aliases registered for a task name, sorted.
func (r *Registry) Aliases(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for a, n := range r.aliases {
		if n == name {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}

// Tasks returns all tasks in registration order.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Task, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tasks[name])
	}
	return out
}

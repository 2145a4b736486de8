package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/rebalancer/pkg/model"
)

// Factory builds a strategy from its collaborators and resolved parameters
type Factory func(deps Deps, params Parameters) (Strategy, error)

// Info describes a registered strategy
type Info struct {
	Name        string      `json:"name" yaml:"name"`
	Goal        string      `json:"goal" yaml:"goal"`
	DisplayName string      `json:"display_name" yaml:"display_name"`
	Schema      []ParamSpec `json:"schema" yaml:"schema"`
}

type entry struct {
	info    Info
	factory Factory
}

// Registry maps strategy names to factories. Registration order is kept so
// that "the first strategy for a goal" is deterministic.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// NewDefaultRegistry returns a registry holding every built-in strategy
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, b := range []struct {
		info    Info
		factory Factory
	}{
		{workloadBalanceInfo, newWorkloadBalance},
		{workloadStabilizationInfo, newWorkloadStabilization},
		{outletTemperatureInfo, newOutletTemperature},
		{uniformAirflowInfo, newUniformAirflow},
	} {
		if err := r.Register(b.info, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a strategy. Names must be unique.
func (r *Registry) Register(info Info, factory Factory) error {
	if info.Name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if info.Goal == "" {
		return fmt.Errorf("strategy %s: goal must not be empty", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[info.Name]; exists {
		return fmt.Errorf("strategy %s already registered", info.Name)
	}
	r.entries[info.Name] = entry{info: info, factory: factory}
	r.order = append(r.order, info.Name)
	return nil
}

// New resolves params against the strategy schema and builds the strategy
func (r *Registry) New(name string, deps Deps, params Parameters) (Strategy, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", name, model.ErrEntityNotFound)
	}

	resolved, err := Resolve(e.info.Schema, params)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return e.factory(deps, resolved)
}

// Get returns the description of a strategy
func (r *Registry) Get(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.info, ok
}

// Schema returns the parameter schema of a strategy
func (r *Registry) Schema(name string) ([]ParamSpec, error) {
	info, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", name, model.ErrEntityNotFound)
	}
	return info.Schema, nil
}

// List returns every strategy in registration order
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].info)
	}
	return out
}

// ForGoal returns the strategies serving a goal in registration order
func (r *Registry) ForGoal(goal string) []Info {
	var out []Info
	for _, info := range r.List() {
		if info.Goal == goal {
			out = append(out, info)
		}
	}
	return out
}

// Goals returns the distinct goals served by registered strategies, sorted
func (r *Registry) Goals() []string {
	seen := make(map[string]bool)
	var goals []string
	for _, info := range r.List() {
		if !seen[info.Goal] {
			seen[info.Goal] = true
			goals = append(goals, info.Goal)
		}
	}
	sort.Strings(goals)
	return goals
}

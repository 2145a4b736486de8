package collector

import (
	"fmt"
	"sync"
)

// Entry pairs a collector with the slot holding its published model
type Entry struct {
	Collector Collector
	Slot      *Slot
}

// Registry keeps collectors in registration order
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byName  map[string]*Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Entry)}
}

// Register adds a collector and creates its slot
func (r *Registry) Register(c Collector) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[c.Name()]; exists {
		return nil, fmt.Errorf("collector %q already registered", c.Name())
	}
	e := &Entry{Collector: c, Slot: NewSlot(c.Name())}
	r.entries = append(r.entries, e)
	r.byName[c.Name()] = e
	return e, nil
}

// Get returns a collector entry by name
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Default returns the compute collector entry
func (r *Registry) Default() (*Entry, bool) {
	return r.Get(DefaultName)
}

// All returns every entry in registration order
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

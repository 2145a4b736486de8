package collector

import (
	"sync"
	"time"

	"github.com/cuemby/rebalancer/pkg/model"
)

// State is the lifecycle state of a collector's published model
type State string

const (
	StateUninitialized State = "uninitialized"
	StateSyncing       State = "syncing"
	StateFresh         State = "fresh"
	StateStale         State = "stale"
)

// Slot owns the model published by one collector. Its mutex serializes
// publication, staleness marking, notification patches and snapshot reads.
type Slot struct {
	name string

	mu         sync.Mutex
	model      *model.ClusterModel
	state      State
	generation uint64
	lastErr    error
	lastSync   time.Time
}

// NewSlot creates an empty slot
func NewSlot(name string) *Slot {
	return &Slot{name: name, state: StateUninitialized}
}

// Name returns the collector name the slot belongs to
func (s *Slot) Name() string {
	return s.name
}

// BeginSync records that a rebuild started. The published model is untouched.
func (s *Slot) BeginSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSyncing
}

// Publish replaces the model and clears staleness
func (s *Slot) Publish(m *model.ClusterModel) {
	m.SetStale(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.model = m
	s.state = StateFresh
	s.generation++
	s.lastErr = nil
	s.lastSync = time.Now()
}

// MarkStale flags the published model as untrustworthy. A slot that never
// published gets an empty stale model.
func (s *Slot) MarkStale(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model == nil {
		s.model = model.NewStale()
	}
	s.model.SetStale(true)
	s.state = StateStale
	s.lastErr = reason
}

// Latest returns a deep copy of the published model
func (s *Slot) Latest() (*model.ClusterModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model == nil {
		return nil, model.ErrClusterStateUndefined
	}
	return s.model.DeepCopy(), nil
}

// Update mutates the published model in place under the slot lock
func (s *Slot) Update(fn func(*model.ClusterModel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model == nil {
		return model.ErrClusterStateUndefined
	}
	return fn(s.model)
}

// View reads the published model under the slot lock. fn receives nil when
// nothing was published and must not retain the model.
func (s *Slot) View(fn func(*model.ClusterModel)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.model)
}

// State returns the current lifecycle state
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation counts successful publications
func (s *Slot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// LastError returns the reason of the last failed rebuild, if any
func (s *Slot) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastSync returns when the model was last published
func (s *Slot) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

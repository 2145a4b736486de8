package strategy

import (
	"maps"

	"github.com/cuemby/rebalancer/pkg/model"
)

// Action types
const (
	ActionMigrate = "migrate"
)

// Migration types
const (
	MigrationLive = "live"
)

// Action is one recommended change, in execution order within a Solution
type Action struct {
	Type       string            `json:"type"`
	ResourceID string            `json:"resource_id"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// NewMigration builds a live migration action for a workload
func NewMigration(workloadID, src, dst string) Action {
	return Action{
		Type:       ActionMigrate,
		ResourceID: workloadID,
		Parameters: map[string]string{
			"workload_id":      workloadID,
			"migration_type":   MigrationLive,
			"source_node":      src,
			"destination_node": dst,
		},
	}
}

// Solution is the output of one strategy run: the ordered actions, the
// model they were planned against and efficacy indicators. It is frozen
// once the strategy's PostExecute completes.
type Solution struct {
	Strategy string
	Model    *model.ClusterModel

	actions    []Action
	indicators map[string]float64
	frozen     bool
}

// NewSolution creates an empty solution for a strategy
func NewSolution(strategy string) *Solution {
	return &Solution{
		Strategy:   strategy,
		indicators: make(map[string]float64),
	}
}

// AddAction appends an action. Adding to a frozen solution is a programming
// error and panics.
func (s *Solution) AddAction(a Action) {
	if s.frozen {
		panic("strategy: AddAction on a frozen solution")
	}
	a.Parameters = maps.Clone(a.Parameters)
	s.actions = append(s.actions, a)
}

// Actions returns a copy of the actions in order
func (s *Solution) Actions() []Action {
	out := make([]Action, len(s.actions))
	for i, a := range s.actions {
		a.Parameters = maps.Clone(a.Parameters)
		out[i] = a
	}
	return out
}

// Len returns the number of actions
func (s *Solution) Len() int {
	return len(s.actions)
}

// SetIndicator records an efficacy indicator
func (s *Solution) SetIndicator(name string, value float64) {
	s.indicators[name] = value
}

// Indicators returns a copy of the efficacy indicators
func (s *Solution) Indicators() map[string]float64 {
	return maps.Clone(s.indicators)
}

// Freeze makes the action list immutable
func (s *Solution) Freeze() {
	s.frozen = true
}

// Frozen reports whether Freeze was called
func (s *Solution) Frozen() bool {
	return s.frozen
}

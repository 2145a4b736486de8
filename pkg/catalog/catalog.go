package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

// Report lists what a Sync changed
type Report struct {
	GoalsAdded        []string `json:"goals_added,omitempty"`
	GoalsRemoved      []string `json:"goals_removed,omitempty"`
	StrategiesAdded   []string `json:"strategies_added,omitempty"`
	StrategiesUpdated []string `json:"strategies_updated,omitempty"`
	StrategiesRemoved []string `json:"strategies_removed,omitempty"`
}

// Changed reports whether the sync touched the store
func (r Report) Changed() bool {
	return len(r.GoalsAdded)+len(r.GoalsRemoved)+
		len(r.StrategiesAdded)+len(r.StrategiesUpdated)+len(r.StrategiesRemoved) > 0
}

// Sync makes the stored goals and strategies match the registry. Records of
// registered entries are created or refreshed, records of entries no longer
// registered are soft-deleted.
func Sync(store storage.Store, registry *strategy.Registry) (Report, error) {
	var report Report
	now := time.Now()

	goals := make(map[string]bool)
	for _, name := range registry.Goals() {
		goals[name] = true
		added, err := syncGoal(store, name, now)
		if err != nil {
			return report, err
		}
		if added {
			report.GoalsAdded = append(report.GoalsAdded, name)
		}
	}

	strategies := make(map[string]bool)
	for _, info := range registry.List() {
		strategies[info.Name] = true
		added, updated, err := syncStrategy(store, info, now)
		if err != nil {
			return report, err
		}
		switch {
		case added:
			report.StrategiesAdded = append(report.StrategiesAdded, info.Name)
		case updated:
			report.StrategiesUpdated = append(report.StrategiesUpdated, info.Name)
		}
	}

	stored, err := store.ListStrategies()
	if err != nil {
		return report, fmt.Errorf("failed to list strategies: %w", err)
	}
	for _, s := range stored {
		if strategies[s.Name] {
			continue
		}
		if err := store.SoftDeleteStrategy(s.Name); err != nil {
			return report, fmt.Errorf("failed to delete strategy %s: %w", s.Name, err)
		}
		report.StrategiesRemoved = append(report.StrategiesRemoved, s.Name)
	}

	storedGoals, err := store.ListGoals()
	if err != nil {
		return report, fmt.Errorf("failed to list goals: %w", err)
	}
	for _, g := range storedGoals {
		if goals[g.Name] {
			continue
		}
		if err := store.SoftDeleteGoal(g.Name); err != nil {
			return report, fmt.Errorf("failed to delete goal %s: %w", g.Name, err)
		}
		report.GoalsRemoved = append(report.GoalsRemoved, g.Name)
	}

	if report.Changed() {
		logger := log.WithComponent("catalog")
		logger.Info().
			Strs("goals_added", report.GoalsAdded).
			Strs("goals_removed", report.GoalsRemoved).
			Strs("strategies_added", report.StrategiesAdded).
			Strs("strategies_updated", report.StrategiesUpdated).
			Strs("strategies_removed", report.StrategiesRemoved).
			Msg("Catalog synchronized")
	}
	return report, nil
}

func syncGoal(store storage.Store, name string, now time.Time) (bool, error) {
	_, err := store.GetGoal(name)
	if err == nil {
		return false, nil
	}
	if !errdefs.IsNotFound(err) {
		return false, fmt.Errorf("failed to get goal %s: %w", name, err)
	}

	displayName := strategy.GoalDisplayNames[name]
	if displayName == "" {
		displayName = name
	}
	goal := &types.Goal{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutGoal(goal); err != nil {
		return false, fmt.Errorf("failed to store goal %s: %w", name, err)
	}
	return true, nil
}

func syncStrategy(store storage.Store, info strategy.Info, now time.Time) (added, updated bool, err error) {
	params, err := parameterSpecs(info.Schema)
	if err != nil {
		return false, false, fmt.Errorf("strategy %s: %w", info.Name, err)
	}

	existing, err := store.GetStrategy(info.Name)
	if err != nil && !errdefs.IsNotFound(err) {
		return false, false, fmt.Errorf("failed to get strategy %s: %w", info.Name, err)
	}

	if existing != nil {
		if existing.GoalName == info.Goal &&
			existing.DisplayName == info.DisplayName &&
			cmp.Equal(existing.Parameters, params) {
			return false, false, nil
		}
		existing.GoalName = info.Goal
		existing.DisplayName = info.DisplayName
		existing.Parameters = params
		existing.UpdatedAt = now
		if err := store.PutStrategy(existing); err != nil {
			return false, false, fmt.Errorf("failed to store strategy %s: %w", info.Name, err)
		}
		return false, true, nil
	}

	record := &types.StrategyRecord{
		ID:          uuid.New().String(),
		Name:        info.Name,
		GoalName:    info.Goal,
		DisplayName: info.DisplayName,
		Parameters:  params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.PutStrategy(record); err != nil {
		return false, false, fmt.Errorf("failed to store strategy %s: %w", info.Name, err)
	}
	return true, false, nil
}

// parameterSpecs converts a schema into its stored form. Defaults go through
// JSON so they compare equal to what the store decodes.
func parameterSpecs(schema []strategy.ParamSpec) ([]types.ParameterSpec, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameter schema: %w", err)
	}
	var specs []types.ParameterSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode parameter schema: %w", err)
	}
	return specs, nil
}

package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rebalancer/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGoalsAndStrategies(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutGoal(&types.Goal{ID: "g1", Name: "workload_balancing", DisplayName: "Workload Balancing"}))
	require.NoError(t, store.PutGoal(&types.Goal{ID: "g2", Name: "thermal_optimization"}))

	goal, err := store.GetGoal("workload_balancing")
	require.NoError(t, err)
	assert.Equal(t, "Workload Balancing", goal.DisplayName)

	goals, err := store.ListGoals()
	require.NoError(t, err)
	assert.Len(t, goals, 2)

	require.NoError(t, store.SoftDeleteGoal("thermal_optimization"))
	_, err = store.GetGoal("thermal_optimization")
	assert.True(t, errdefs.IsNotFound(err))
	goals, err = store.ListGoals()
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	assert.True(t, errdefs.IsNotFound(store.SoftDeleteGoal("thermal_optimization")))

	// re-registering revives the record
	require.NoError(t, store.PutGoal(&types.Goal{ID: "g2", Name: "thermal_optimization"}))
	_, err = store.GetGoal("thermal_optimization")
	assert.NoError(t, err)

	record := &types.StrategyRecord{
		ID:       "s1",
		Name:     "workload_balance",
		GoalName: "workload_balancing",
		Parameters: []types.ParameterSpec{
			{Name: "threshold", Type: "number", Default: 25.0},
		},
	}
	require.NoError(t, store.PutStrategy(record))
	got, err := store.GetStrategy("workload_balance")
	require.NoError(t, err)
	assert.Equal(t, record.Parameters, got.Parameters)

	require.NoError(t, store.SoftDeleteStrategy("workload_balance"))
	strategies, err := store.ListStrategies()
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestAudits(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	first := &types.Audit{
		ID:         "a1",
		Name:       "balance",
		Type:       types.AuditTypeContinuous,
		State:      types.AuditStatePending,
		GoalName:   "workload_balancing",
		Parameters: map[string]any{"threshold": 80.0},
		Interval:   time.Minute,
		CreatedAt:  now,
	}
	second := &types.Audit{ID: "a2", Type: types.AuditTypeOneShot, State: types.AuditStatePending, CreatedAt: now.Add(-time.Hour)}

	require.NoError(t, store.CreateAudit(first))
	require.NoError(t, store.CreateAudit(second))
	assert.True(t, errdefs.IsAlreadyExists(store.CreateAudit(first)))

	got, err := store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	audits, err := store.ListAudits()
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "a2", audits[0].ID, "audits are listed oldest first")

	got.State = types.AuditStateOngoing
	got.LastRunAt = now
	require.NoError(t, store.UpdateAudit(got))
	got, err = store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateOngoing, got.State)

	assert.True(t, errdefs.IsNotFound(store.UpdateAudit(&types.Audit{ID: "missing"})))

	modified, err := store.ModifyAudit("a1", func(a *types.Audit) error {
		a.State = types.AuditStateSucceeded
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateSucceeded, modified.State)

	refused := errors.New("refused")
	_, err = store.ModifyAudit("a1", func(a *types.Audit) error {
		a.State = types.AuditStateFailed
		return refused
	})
	assert.ErrorIs(t, err, refused)
	got, err = store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateSucceeded, got.State, "an aborted change is not written")

	require.NoError(t, store.SoftDeleteAudit("a2"))
	_, err = store.GetAudit("a2")
	assert.True(t, errdefs.IsNotFound(err))
	assert.True(t, errdefs.IsNotFound(store.UpdateAudit(second)), "soft-deleted audits cannot be updated")
	_, err = store.ModifyAudit("a2", func(*types.Audit) error { return nil })
	assert.True(t, errdefs.IsNotFound(err))
}

func TestActionPlans(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	older := &types.ActionPlan{ID: "p1", AuditID: "a1", State: types.ActionPlanStateRecommended, CreatedAt: now.Add(-time.Minute)}
	newer := &types.ActionPlan{
		ID:      "p2",
		AuditID: "a1",
		State:   types.ActionPlanStateRecommended,
		Actions: []*types.Action{
			{ID: "x", Index: 0, Type: "migrate", ResourceID: "vm-1", State: types.ActionStatePending,
				Parameters: map[string]string{"source_node": "host-a", "destination_node": "host-b"}},
		},
		Indicators: map[string]float64{"instance_migrations_count": 1},
		CreatedAt:  now,
	}
	require.NoError(t, store.CreateActionPlan(newer))
	require.NoError(t, store.CreateActionPlan(older))

	plan, err := store.GetActionPlanByAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, "p2", plan.ID)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, "host-b", plan.Actions[0].Parameters["destination_node"])

	_, err = store.GetActionPlanByAudit("a9")
	assert.True(t, errdefs.IsNotFound(err))

	older.State = types.ActionPlanStateSuperseded
	require.NoError(t, store.UpdateActionPlan(older))
	got, err := store.GetActionPlan("p1")
	require.NoError(t, err)
	assert.Equal(t, types.ActionPlanStateSuperseded, got.State)

	plans, err := store.ListActionPlans()
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateAudit(&types.Audit{ID: "a1", State: types.AuditStatePending}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	audit, err := store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStatePending, audit.State)
}

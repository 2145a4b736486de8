package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/telemetry"
	"github.com/cuemby/rebalancer/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	store      *storage.BoltStore
	collectors *collector.Registry
	slot       *collector.Slot
	executor   *strategy.Executor
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	collectors := collector.NewRegistry()
	entry, err := collectors.Register(collector.NewComputeCollector(compute.NewStaticInventory(compute.Inventory{}), time.Hour))
	require.NoError(t, err)

	agg := telemetry.NewStatic()
	for _, vm := range []string{"vm-1", "vm-2", "vm-3"} {
		agg.Set(vm, telemetry.MeterCPUUtil, 100)
	}
	executor := strategy.NewExecutor(strategy.NewDefaultRegistry(), agg)

	return &fixture{
		store:      store,
		collectors: collectors,
		slot:       entry.Slot,
		executor:   executor,
		dispatcher: NewDispatcher(store, collectors, executor, cfg),
	}
}

// publish loads host-a with 9 of 10 cores and host-b with 4 of 40
func (f *fixture) publish(t *testing.T) {
	t.Helper()
	m := model.New()
	for id, cores := range map[string]float64{"host-a": 10, "host-b": 40} {
		m.AddNode(&model.ComputeNode{ID: id, UUID: id, Hostname: id, State: model.NodeStateOnline, Status: model.NodeStatusEnabled})
		m.Resource(model.ResourceCPUCores).SetCapacity(id, cores)
		m.Resource(model.ResourceMemory).SetCapacity(id, 131072)
		m.Resource(model.ResourceDisk).SetCapacity(id, 800)
	}
	for _, vm := range []struct {
		id    string
		host  string
		cores float64
	}{
		{"vm-1", "host-a", 4},
		{"vm-2", "host-a", 5},
		{"vm-3", "host-b", 4},
	} {
		m.AddWorkload(&model.Workload{UUID: vm.id, State: model.WorkloadStateActive})
		m.Resource(model.ResourceCPUCores).SetCapacity(vm.id, vm.cores)
		m.Resource(model.ResourceMemory).SetCapacity(vm.id, 2048)
		m.Resource(model.ResourceDisk).SetCapacity(vm.id, 10)
		require.NoError(t, m.Map(vm.id, vm.host))
	}
	f.slot.Publish(m)
}

func (f *fixture) createAudit(t *testing.T, audit *types.Audit) {
	t.Helper()
	if audit.State == "" {
		audit.State = types.AuditStatePending
	}
	if audit.Parameters == nil && audit.GoalName == strategy.GoalWorkloadBalancing {
		audit.Parameters = map[string]any{"threshold": 80.0}
	}
	audit.CreatedAt = time.Now()
	require.NoError(t, f.store.CreateAudit(audit))
}

func TestRunAudit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, GoalName: strategy.GoalWorkloadBalancing, StrategyName: "workload_balance"})

	plan, err := f.dispatcher.RunAudit(context.Background(), "a1")
	require.NoError(t, err)

	assert.Equal(t, "a1", plan.AuditID)
	assert.Equal(t, "workload_balance", plan.StrategyName)
	assert.Equal(t, types.ActionPlanStateRecommended, plan.State)
	require.Len(t, plan.Actions, 1)
	action := plan.Actions[0]
	assert.Equal(t, 0, action.Index)
	assert.Equal(t, "vm-1", action.ResourceID)
	assert.Equal(t, types.ActionStatePending, action.State)
	assert.Equal(t, "host-a", action.Parameters["source_node"])
	assert.Equal(t, "host-b", action.Parameters["destination_node"])
	assert.Equal(t, 1.0, plan.Indicators[strategy.IndicatorMigrations])

	stored, err := f.store.GetActionPlanByAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, stored.ID)

	audit, err := f.store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateSucceeded, audit.State)
	assert.False(t, audit.LastRunAt.IsZero())

	// the published model is untouched by planning
	f.slot.View(func(m *model.ClusterModel) {
		node, _ := m.NodeOf("vm-1")
		assert.Equal(t, "host-a", node)
	})
}

func TestRunAuditWithoutModel(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, GoalName: strategy.GoalWorkloadBalancing})

	plan, err := f.dispatcher.RunAudit(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrClusterStateUndefined))
	assert.Nil(t, plan)

	audit, err := f.store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateFailed, audit.State)
	assert.NotEmpty(t, audit.StateReason)

	_, err = f.store.GetActionPlanByAudit("a1")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestRunAuditStaleModel(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.slot.MarkStale(errors.New("compute service unreachable"))
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, GoalName: strategy.GoalWorkloadBalancing})

	_, err := f.dispatcher.RunAudit(context.Background(), "a1")
	assert.True(t, errors.Is(err, model.ErrClusterStateUndefined))

	audit, err := f.store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateFailed, audit.State)
}

func TestStrategySelection(t *testing.T) {
	tests := []struct {
		name         string
		goal         string
		strategy     string
		wantStrategy string
		wantErr      bool
	}{
		{name: "named strategy", goal: strategy.GoalWorkloadBalancing, strategy: "workload_stabilization", wantStrategy: "workload_stabilization"},
		{name: "first strategy of the goal", goal: strategy.GoalThermalOptimization, wantStrategy: "outlet_temperature"},
		{name: "strategy does not serve goal", goal: strategy.GoalThermalOptimization, strategy: "workload_balance", wantErr: true},
		{name: "unknown strategy", goal: strategy.GoalWorkloadBalancing, strategy: "basic_consolidation", wantErr: true},
		{name: "unknown goal", goal: "server_consolidation", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			got, err := f.dispatcher.selectStrategy(&types.Audit{GoalName: tt.goal, StrategyName: tt.strategy})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrategy, got)
		})
	}
}

func TestContinuousAuditSupersedesPlans(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.createAudit(t, &types.Audit{
		ID:           "a1",
		Type:         types.AuditTypeContinuous,
		GoalName:     strategy.GoalWorkloadBalancing,
		StrategyName: "workload_balance",
		Interval:     time.Minute,
	})

	first, err := f.dispatcher.RunAudit(context.Background(), "a1")
	require.NoError(t, err)
	second, err := f.dispatcher.RunAudit(context.Background(), "a1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := f.store.GetActionPlan(first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionPlanStateSuperseded, old.State)

	latest, err := f.store.GetActionPlanByAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, types.ActionPlanStateRecommended, latest.State)

	audit, err := f.store.GetAudit("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateOngoing, audit.State, "continuous audits keep running")
}

// faultyStore injects failures and concurrent changes around a BoltStore
type faultyStore struct {
	*storage.BoltStore
	createPlanErr    error
	planByAuditErr   error
	// beforeCreatePlan runs as if another request raced the audit run
	beforeCreatePlan func()
}

func (s *faultyStore) CreateActionPlan(plan *types.ActionPlan) error {
	if s.beforeCreatePlan != nil {
		s.beforeCreatePlan()
	}
	if s.createPlanErr != nil {
		return s.createPlanErr
	}
	return s.BoltStore.CreateActionPlan(plan)
}

func (s *faultyStore) GetActionPlanByAudit(auditID string) (*types.ActionPlan, error) {
	if s.planByAuditErr != nil {
		return nil, s.planByAuditErr
	}
	return s.BoltStore.GetActionPlanByAudit(auditID)
}

func (f *fixture) withStore(store storage.Store) *Dispatcher {
	return NewDispatcher(store, f.collectors, f.executor, DefaultConfig())
}

func TestFailedPlanStoreKeepsPreviousPlan(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.createAudit(t, &types.Audit{
		ID:           "a1",
		Type:         types.AuditTypeContinuous,
		GoalName:     strategy.GoalWorkloadBalancing,
		StrategyName: "workload_balance",
		Interval:     time.Minute,
	})

	first, err := f.dispatcher.RunAudit(context.Background(), "a1")
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	tests := []struct {
		name  string
		store *faultyStore
	}{
		{name: "create fails", store: &faultyStore{BoltStore: f.store, createPlanErr: diskFull}},
		{name: "previous plan lookup fails", store: &faultyStore{BoltStore: f.store, planByAuditErr: diskFull}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.withStore(tt.store).RunAudit(context.Background(), "a1")
			assert.ErrorIs(t, err, diskFull)

			latest, err := f.store.GetActionPlanByAudit("a1")
			require.NoError(t, err)
			assert.Equal(t, first.ID, latest.ID, "no new plan is stored")
			assert.Equal(t, types.ActionPlanStateRecommended, latest.State)

			audit, err := f.store.GetAudit("a1")
			require.NoError(t, err)
			assert.Equal(t, types.AuditStateFailed, audit.State)
		})
	}
}

func TestCancelDuringRunIsKept(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, GoalName: strategy.GoalWorkloadBalancing})

	cancel := func() {
		_, err := f.store.ModifyAudit("a1", func(a *types.Audit) error {
			a.State = types.AuditStateCancelled
			return nil
		})
		require.NoError(t, err)
	}

	t.Run("cancel before the plan is stored", func(t *testing.T) {
		store := &faultyStore{BoltStore: f.store, beforeCreatePlan: cancel}
		_, err := f.withStore(store).RunAudit(context.Background(), "a1")
		require.NoError(t, err)

		audit, err := f.store.GetAudit("a1")
		require.NoError(t, err)
		assert.Equal(t, types.AuditStateCancelled, audit.State)
	})

	t.Run("failure after cancel", func(t *testing.T) {
		_, err := f.store.ModifyAudit("a1", func(a *types.Audit) error {
			a.State = types.AuditStatePending
			return nil
		})
		require.NoError(t, err)

		store := &faultyStore{BoltStore: f.store, beforeCreatePlan: cancel, createPlanErr: errors.New("disk full")}
		_, err = f.withStore(store).RunAudit(context.Background(), "a1")
		require.Error(t, err)

		audit, err := f.store.GetAudit("a1")
		require.NoError(t, err)
		assert.Equal(t, types.AuditStateCancelled, audit.State)
	})
}

func TestRunCancelledAudit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.publish(t)
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, State: types.AuditStateCancelled, GoalName: strategy.GoalWorkloadBalancing})

	_, err := f.dispatcher.RunAudit(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrAuditCancelled)

	_, err = f.dispatcher.RunAudit(context.Background(), "missing")
	assert.True(t, errdefs.IsNotFound(err))
}

func TestTriggerRunsInBackground(t *testing.T) {
	f := newFixture(t, Config{Workers: 2, QueueSize: 4})
	f.publish(t)
	f.createAudit(t, &types.Audit{ID: "a1", Type: types.AuditTypeOneShot, GoalName: strategy.GoalWorkloadBalancing})
	f.createAudit(t, &types.Audit{ID: "a2", Type: types.AuditTypeOneShot, GoalName: strategy.GoalThermalOptimization})

	f.dispatcher.Start()
	defer f.dispatcher.Stop()

	require.NoError(t, f.dispatcher.Trigger("a1"))
	require.NoError(t, f.dispatcher.Trigger("a2"))

	for _, id := range []string{"a1", "a2"} {
		assert.Eventually(t, func() bool {
			audit, err := f.store.GetAudit(id)
			return err == nil && audit.State == types.AuditStateSucceeded
		}, 5*time.Second, 10*time.Millisecond, "audit %s", id)
	}

	plan, err := f.store.GetActionPlanByAudit("a2")
	require.NoError(t, err)
	assert.Equal(t, "outlet_temperature", plan.StrategyName)
	assert.Empty(t, plan.Actions, "no outlet temperature telemetry")
}

func TestTriggerOverflow(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		// workers are not started, so the queue never drains
		f := newFixture(t, Config{Workers: 1, QueueSize: 1, Overflow: OverflowReject})

		require.NoError(t, f.dispatcher.Trigger("a1"))
		assert.NoError(t, f.dispatcher.Trigger("a1"), "already queued")
		assert.ErrorIs(t, f.dispatcher.Trigger("a2"), ErrQueueFull)

		f.dispatcher.Stop()
		assert.ErrorIs(t, f.dispatcher.Trigger("a3"), ErrStopped)
	})

	t.Run("block", func(t *testing.T) {
		f := newFixture(t, Config{Workers: 1, QueueSize: 1, Overflow: OverflowBlock})
		require.NoError(t, f.dispatcher.Trigger("a1"))

		done := make(chan error, 1)
		go func() {
			done <- f.dispatcher.Trigger("a2")
		}()

		select {
		case err := <-done:
			t.Fatalf("trigger returned while the queue was full: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		f.dispatcher.Stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrStopped)
		case <-time.After(time.Second):
			t.Fatal("blocked trigger did not return after stop")
		}
	})
}

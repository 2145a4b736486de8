package client

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rebalancer/pkg/api"
	"github.com/cuemby/rebalancer/pkg/audit"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/storage"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

type recorder struct {
	mu       sync.Mutex
	triggers []string
	notes    []*events.Notification
	err      error
}

func (r *recorder) Trigger(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.triggers = append(r.triggers, id)
	return nil
}

func (r *recorder) Publish(n *events.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func newTestClient(t *testing.T) (*Client, *storage.BoltStore, *recorder) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := &recorder{}
	server := httptest.NewServer(api.NewServer(store, rec, strategy.NewDefaultRegistry(), rec).Handler())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	return c, store, rec
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("127.0.0.1:9322")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9322", c.baseURL)

	c, err = NewClient("https://rebalancer.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://rebalancer.example.com", c.baseURL)

	_, err = NewClient("")
	assert.Error(t, err)
}

func TestAuditRoundTrip(t *testing.T) {
	c, store, rec := newTestClient(t)

	created, err := c.CreateAudit(api.CreateAuditRequest{
		Name:         "nightly",
		Type:         types.AuditTypeContinuous,
		StrategyName: "workload_balance",
		Parameters:   map[string]any{"threshold": 70.0},
		Interval:     "1h",
	})
	require.NoError(t, err)
	assert.Equal(t, strategy.GoalWorkloadBalancing, created.GoalName)

	got, err := c.GetAudit(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Name)
	assert.Equal(t, 70.0, got.Parameters["threshold"])

	audits, err := c.ListAudits()
	require.NoError(t, err)
	assert.Len(t, audits, 1)

	_, err = c.TriggerAudit(created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, rec.triggers)

	_, err = c.GetActionPlan(created.ID)
	assert.True(t, errdefs.IsNotFound(err))

	require.NoError(t, store.CreateActionPlan(&types.ActionPlan{ID: "p1", AuditID: created.ID, State: types.ActionPlanStateRecommended}))
	plan, err := c.GetActionPlan(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", plan.ID)

	cancelled, err := c.CancelAudit(created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AuditStateCancelled, cancelled.State)

	_, err = c.TriggerAudit(created.ID)
	assert.True(t, errdefs.IsConflict(err))

	require.NoError(t, c.DeleteAudit(created.ID))
	_, err = c.GetAudit(created.ID)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestErrorKinds(t *testing.T) {
	c, store, rec := newTestClient(t)

	_, err := c.CreateAudit(api.CreateAuditRequest{GoalName: "server_consolidation"})
	assert.True(t, errdefs.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "unknown goal")

	require.NoError(t, store.CreateAudit(&types.Audit{ID: "a1", Type: types.AuditTypeOneShot, State: types.AuditStatePending}))
	rec.err = audit.ErrQueueFull
	_, err = c.TriggerAudit("a1")
	assert.True(t, errdefs.IsUnavailable(err))
}

func TestCatalogAndNotifications(t *testing.T) {
	c, _, rec := newTestClient(t)

	infos, err := c.ListStrategies(strategy.GoalThermalOptimization)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "outlet_temperature", infos[0].Name)

	goals, err := c.ListGoals()
	require.NoError(t, err)
	assert.Empty(t, goals)

	n, err := events.NewNotification("compute.host-a", events.EventLegacyInstanceDeleted, map[string]string{"instance_id": "vm-1"})
	require.NoError(t, err)
	require.NoError(t, c.PublishNotification(n))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, n.ID, rec.notes[0].ID)
}

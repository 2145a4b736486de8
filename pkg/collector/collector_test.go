package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInventory() *compute.StaticInventory {
	return compute.NewStaticInventory(compute.Inventory{
		Nodes: []*compute.NodeFacts{
			{ID: "1", Hostname: "host-1", VCPUs: 16, MemoryMB: 65536, FreeDiskGB: 100, LocalGB: 200},
			{ID: "2", Hostname: "host-2", VCPUs: 16, MemoryMB: 65536, FreeDiskGB: 100, LocalGB: 200},
		},
		Instances: []*compute.InstanceFacts{
			{UUID: "vm-1", Host: "host-1", State: model.WorkloadStateActive, VCPUs: 2, MemoryMB: 2048, RootGB: 10},
			{UUID: "vm-2", Host: "host-2", State: model.WorkloadStateActive, VCPUs: 4, MemoryMB: 4096, RootGB: 20},
			{UUID: "vm-3", Host: "host-9", State: model.WorkloadStateBuilding},
			{UUID: "vm-4", State: model.WorkloadStateBuilding},
		},
	})
}

func TestComputeCollectorExecute(t *testing.T) {
	c := NewComputeCollector(testInventory(), 0)
	assert.Equal(t, DefaultName, c.Name())
	assert.Equal(t, DefaultPeriod, c.Period())

	m, err := c.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"host-1", "host-2"}, m.Nodes())
	assert.Equal(t, []string{"vm-1", "vm-2", "vm-3", "vm-4"}, m.Workloads())
	assert.Equal(t, []string{"vm-1"}, m.WorkloadsOf("host-1"))

	for _, id := range []string{"vm-3", "vm-4"} {
		_, placed := m.NodeOf(id)
		assert.False(t, placed, "%s should be unplaced", id)
	}

	assert.Equal(t, 16.0, m.Resource(model.ResourceCPUCores).CapacityOrZero("host-1"))
	assert.Equal(t, 4.0, m.Resource(model.ResourceCPUCores).CapacityOrZero("vm-2"))
	assert.Equal(t, 20.0, m.Resource(model.ResourceDisk).CapacityOrZero("vm-2"))
}

func TestComputeCollectorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewComputeCollector(testInventory(), 0).Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlotLifecycle(t *testing.T) {
	s := NewSlot("compute")
	assert.Equal(t, StateUninitialized, s.State())

	_, err := s.Latest()
	assert.ErrorIs(t, err, model.ErrClusterStateUndefined)
	assert.ErrorIs(t, s.Update(func(*model.ClusterModel) error { return nil }), model.ErrClusterStateUndefined)

	s.BeginSync()
	assert.Equal(t, StateSyncing, s.State())

	m := model.New()
	m.AddNode(&model.ComputeNode{ID: "host-1"})
	s.Publish(m)
	assert.Equal(t, StateFresh, s.State())
	assert.Equal(t, uint64(1), s.Generation())
	assert.False(t, s.LastSync().IsZero())

	reason := errors.New("boom")
	s.MarkStale(reason)
	assert.Equal(t, StateStale, s.State())
	assert.Equal(t, reason, s.LastError())

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.True(t, latest.Stale())
	assert.Equal(t, 1, latest.Len(), "stale marking keeps the model")

	s.Publish(model.New())
	latest, err = s.Latest()
	require.NoError(t, err)
	assert.False(t, latest.Stale())
	assert.Nil(t, s.LastError())
	assert.Equal(t, uint64(2), s.Generation())
}

func TestSlotMarkStaleBeforePublish(t *testing.T) {
	s := NewSlot("compute")
	s.MarkStale(model.ErrCollectionTimeout)

	m, err := s.Latest()
	require.NoError(t, err)
	assert.True(t, m.Stale())
	assert.Equal(t, 0, m.Len())
}

func TestSlotLatestIsSnapshot(t *testing.T) {
	s := NewSlot("compute")
	m := model.New()
	m.AddNode(&model.ComputeNode{ID: "host-1"})
	s.Publish(m)

	snap, err := s.Latest()
	require.NoError(t, err)

	require.NoError(t, s.Update(func(m *model.ClusterModel) error {
		m.AddNode(&model.ComputeNode{ID: "host-2"})
		return nil
	}))

	assert.Equal(t, 1, snap.Len())
	s.View(func(m *model.ClusterModel) {
		assert.Equal(t, 2, m.Len())
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Default()
	assert.False(t, ok)

	e, err := r.Register(NewComputeCollector(testInventory(), 0))
	require.NoError(t, err)
	assert.Equal(t, DefaultName, e.Slot.Name())

	_, err = r.Register(NewComputeCollector(testInventory(), 0))
	assert.Error(t, err)

	def, ok := r.Default()
	require.True(t, ok)
	assert.Same(t, e, def)
	assert.Len(t, r.All(), 1)
}

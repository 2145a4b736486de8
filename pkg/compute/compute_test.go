package compute

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const inventoryYAML = `
nodes:
  - id: "1"
    hostname: host-1
    vcpus: 40
    memory_mb: 131072
    free_disk_gb: 200
    local_gb: 500
  - id: "2"
    hostname: host-2
    state: offline
    status: disabled
    vcpus: 10
instances:
  - uuid: vm-1
    host: host-1
    state: active
    vcpus: 4
    memory_mb: 8192
    root_gb: 20
`

func TestParseInventory(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		nodes   int
	}{
		{name: "valid", data: inventoryYAML, nodes: 2},
		{name: "empty", data: "", nodes: 0},
		{name: "node without name", data: "nodes:\n  - vcpus: 4\n", wantErr: true},
		{name: "instance without uuid", data: "instances:\n  - host: h\n", wantErr: true},
		{name: "malformed", data: "nodes: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := ParseInventory([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, inv.Nodes, tt.nodes)
		})
	}
}

func TestStaticInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inventoryYAML), 0o600))

	s, err := LoadStaticInventory(path)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.GetNodeByHostname(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, n.VCPUs)

	_, err = s.GetNodeByHostname(ctx, "host-9")
	assert.True(t, errdefs.IsNotFound(err))

	nodes, err := s.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	s.SetInstance(&InstanceFacts{UUID: "vm-2", Host: "host-2"})
	s.SetInstance(&InstanceFacts{UUID: "vm-1", Host: "host-2"})
	instances, err := s.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "host-2", instances[0].Host)

	// reload drops in-memory edits
	require.NoError(t, s.Reload())
	instances, _ = s.ListInstances(ctx)
	assert.Len(t, instances, 1)
}

func TestNodeFactsRecord(t *testing.T) {
	inv, err := ParseInventory([]byte(inventoryYAML))
	require.NoError(t, err)

	m := model.New()
	n := inv.Nodes[0].Record(m)
	assert.Equal(t, "host-1", n.ID)
	assert.Equal(t, "1", n.UUID)
	assert.True(t, n.Available())
	assert.Equal(t, 200.0, m.Resource(model.ResourceDisk).CapacityOrZero("host-1"))
	assert.Equal(t, 500.0, m.Resource(model.ResourceDiskCapacity).CapacityOrZero("host-1"))

	off := inv.Nodes[1].Record(m)
	assert.False(t, off.Available())

	w := inv.Instances[0].Record(m)
	assert.Equal(t, model.WorkloadStateActive, w.State)
	assert.Equal(t, 4.0, m.Resource(model.ResourceCPUCores).CapacityOrZero("vm-1"))
	assert.Equal(t, 20.0, m.Resource(model.ResourceDiskCapacity).CapacityOrZero("vm-1"))
	_, placed := m.NodeOf("vm-1")
	assert.False(t, placed)
}

// fakeKV keeps keys in memory. Keys ending in "/" are read as prefixes.
type fakeKV struct {
	clientv3.KV
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &clientv3.GetResponse{}
	for k, v := range f.data {
		if k == key || (strings.HasSuffix(key, "/") && strings.HasPrefix(k, key)) {
			resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(v)})
		}
	}
	return resp, nil
}

func (f *fakeKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (f *fakeKV) Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return &clientv3.DeleteResponse{}, nil
}

// fakeWatcher replays a fixed channel of watch responses
type fakeWatcher struct {
	clientv3.Watcher
	ch chan clientv3.WatchResponse
}

func (f *fakeWatcher) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	return f.ch
}

func TestEtcdInventory(t *testing.T) {
	kv := newFakeKV()
	inv := NewEtcdInventoryFromKV(kv, nil)
	ctx := context.Background()

	require.NoError(t, inv.PutNode(ctx, &NodeFacts{ID: "1", Hostname: "host-1", VCPUs: 16}))
	require.NoError(t, inv.PutInstance(ctx, &InstanceFacts{UUID: "vm-1", Host: "host-1"}))
	require.NoError(t, inv.PutInstance(ctx, &InstanceFacts{UUID: "vm-2", Host: "host-1"}))
	kv.data[NodeKeyPrefix+"broken"] = "{not json"

	n, err := inv.GetNodeByHostname(ctx, "host-1")
	require.NoError(t, err)
	assert.Equal(t, 16.0, n.VCPUs)

	_, err = inv.GetNodeByHostname(ctx, "host-2")
	assert.ErrorIs(t, err, model.ErrEntityNotFound)

	nodes, err := inv.ListNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	require.NoError(t, inv.DeleteInstance(ctx, "vm-2"))
	instances, err := inv.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "vm-1", instances[0].UUID)

	assert.NoError(t, inv.Close())
}

func TestEtcdInventoryWatch(t *testing.T) {
	value, err := json.Marshal(&InstanceFacts{UUID: "vm-1", Host: "host-1", State: model.WorkloadStateActive, VCPUs: 2})
	require.NoError(t, err)

	w := &fakeWatcher{ch: make(chan clientv3.WatchResponse, 1)}
	w.ch <- clientv3.WatchResponse{Events: []*clientv3.Event{
		{Type: mvccpb.PUT, Kv: &mvccpb.KeyValue{Key: []byte(InstanceKeyPrefix + "vm-1"), Value: value}},
		{Type: mvccpb.PUT, Kv: &mvccpb.KeyValue{Key: []byte(InstanceKeyPrefix + "vm-x"), Value: []byte("{")}},
		{Type: mvccpb.DELETE, Kv: &mvccpb.KeyValue{Key: []byte(InstanceKeyPrefix + "vm-2")}},
	}}
	close(w.ch)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	inv := NewEtcdInventoryFromKV(newFakeKV(), w)
	inv.Watch(context.Background(), broker)

	var got []*events.Notification
	for len(got) < 2 {
		select {
		case n := <-sub:
			got = append(got, n)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 notifications, got %d", len(got))
		}
	}

	assert.Equal(t, events.EventLegacyInstanceUpdate, got[0].EventType)
	assert.Equal(t, EtcdPublisherID, got[0].PublisherID)
	var put LegacyInstancePayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &put))
	assert.Equal(t, "vm-1", put.InstanceID)
	assert.Equal(t, "host-1", put.Host)
	require.NotNil(t, put.VCPUs)
	assert.Equal(t, 2.0, *put.VCPUs)

	assert.Equal(t, events.EventLegacyInstanceDeleted, got[1].EventType)
	var del LegacyInstancePayload
	require.NoError(t, json.Unmarshal(got[1].Payload, &del))
	assert.Equal(t, "vm-2", del.InstanceID)
	assert.Nil(t, del.MemoryMB, "a delete carries no size")
}

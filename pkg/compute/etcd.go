package compute

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/model"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Key prefixes of the etcd inventory
const (
	NodeKeyPrefix     = "/rebalancer/nodes/"
	InstanceKeyPrefix = "/rebalancer/instances/"
)

// Publisher id stamped on notifications synthesized from etcd watch events
const EtcdPublisherID = "compute.etcd"

// EtcdInventory serves compute facts stored as JSON under well-known etcd
// prefixes. Nodes are keyed by hostname, instances by uuid.
type EtcdInventory struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	client  *clientv3.Client
}

// NewEtcdInventory dials etcd
func NewEtcdInventory(endpoints []string, dialTimeout time.Duration) (*EtcdInventory, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdInventory{kv: cli, watcher: cli, client: cli}, nil
}

// NewEtcdInventoryFromKV builds an inventory over existing KV and Watcher
// implementations
func NewEtcdInventoryFromKV(kv clientv3.KV, watcher clientv3.Watcher) *EtcdInventory {
	return &EtcdInventory{kv: kv, watcher: watcher}
}

// Close releases the etcd connection when the inventory owns it
func (e *EtcdInventory) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// PutNode stores node facts
func (e *EtcdInventory) PutNode(ctx context.Context, n *NodeFacts) error {
	return e.putValue(ctx, NodeKeyPrefix+n.NodeID(), n)
}

// PutInstance stores instance facts
func (e *EtcdInventory) PutInstance(ctx context.Context, in *InstanceFacts) error {
	return e.putValue(ctx, InstanceKeyPrefix+in.UUID, in)
}

// DeleteInstance removes instance facts
func (e *EtcdInventory) DeleteInstance(ctx context.Context, uuid string) error {
	if _, err := e.kv.Delete(ctx, InstanceKeyPrefix+uuid); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", uuid, err)
	}
	return nil
}

// GetNodeByHostname implements Facts
func (e *EtcdInventory) GetNodeByHostname(ctx context.Context, hostname string) (*NodeFacts, error) {
	resp, err := e.kv.Get(ctx, NodeKeyPrefix+hostname)
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", hostname, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, model.NodeNotFound(hostname)
	}

	var n NodeFacts
	if err := json.Unmarshal(resp.Kvs[0].Value, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node %s: %w", hostname, err)
	}
	return &n, nil
}

// ListNodes implements Facts. Undecodable values are skipped.
func (e *EtcdInventory) ListNodes(ctx context.Context) ([]*NodeFacts, error) {
	resp, err := e.kv.Get(ctx, NodeKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	nodes := make([]*NodeFacts, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var n NodeFacts
		if err := json.Unmarshal(kv.Value, &n); err != nil {
			log.Logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("Skipping undecodable node")
			continue
		}
		nodes = append(nodes, &n)
	}
	return nodes, nil
}

// ListInstances implements Facts. Undecodable values are skipped.
func (e *EtcdInventory) ListInstances(ctx context.Context) ([]*InstanceFacts, error) {
	resp, err := e.kv.Get(ctx, InstanceKeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*InstanceFacts, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var in InstanceFacts
		if err := json.Unmarshal(kv.Value, &in); err != nil {
			log.Logger.Warn().Err(err).Str("key", string(kv.Key)).Msg("Skipping undecodable instance")
			continue
		}
		instances = append(instances, &in)
	}
	return instances, nil
}

// Watch republishes instance changes as legacy compute notifications until
// ctx is cancelled. Puts become compute.instance.update, deletes
// compute.instance.delete.end.
func (e *EtcdInventory) Watch(ctx context.Context, broker *events.Broker) {
	watchChan := e.watcher.Watch(ctx, InstanceKeyPrefix, clientv3.WithPrefix())

	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			log.Logger.Warn().Err(err).Msg("Etcd watch error")
			continue
		}
		for _, ev := range watchResp.Events {
			n, err := instanceNotification(ev)
			if err != nil {
				log.Logger.Warn().Err(err).Str("key", string(ev.Kv.Key)).Msg("Dropping etcd event")
				continue
			}
			broker.Publish(n)
		}
	}
}

func instanceNotification(ev *clientv3.Event) (*events.Notification, error) {
	uuid := strings.TrimPrefix(string(ev.Kv.Key), InstanceKeyPrefix)

	switch ev.Type {
	case clientv3.EventTypePut:
		var in InstanceFacts
		if err := json.Unmarshal(ev.Kv.Value, &in); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
		}
		if in.UUID == "" {
			in.UUID = uuid
		}
		return events.NewNotification(EtcdPublisherID, events.EventLegacyInstanceUpdate, LegacyInstancePayload{
			InstanceID:  in.UUID,
			State:       string(in.State),
			Host:        in.Host,
			Hostname:    in.Hostname,
			DisplayName: in.DisplayName,
			MemoryMB:    &in.MemoryMB,
			VCPUs:       &in.VCPUs,
			RootGB:      &in.RootGB,
		})
	case clientv3.EventTypeDelete:
		return events.NewNotification(EtcdPublisherID, events.EventLegacyInstanceDeleted, LegacyInstancePayload{
			InstanceID: uuid,
			State:      string(model.WorkloadStateDeleted),
		})
	}
	return nil, fmt.Errorf("unsupported event type %v", ev.Type)
}

func (e *EtcdInventory) putValue(ctx context.Context, key string, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if _, err := e.kv.Put(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

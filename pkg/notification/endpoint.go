package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/model"
)

// ErrMalformedPayload is returned when a notification cannot be decoded or
// lacks a required field
var ErrMalformedPayload = errors.New("malformed notification payload")

// Endpoint patches the published model from one kind of notification
type Endpoint interface {
	Name() string
	Filter() Filter
	Apply(ctx context.Context, n *events.Notification) error
}

// instanceUpdate is the normalized content of any instance notification.
// Nil sizes were absent and leave the ledgers untouched.
type instanceUpdate struct {
	uuid        string
	state       model.WorkloadState
	hostname    string
	displayName string
	memoryMB    *float64
	vcpus       *float64
	diskGB      *float64
	host        string
}

// base carries what every compute endpoint needs: the slot it patches and
// the facts used to create unknown nodes
type base struct {
	name   string
	filter Filter
	slot   *collector.Slot
	facts  compute.Facts
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Filter() Filter {
	return b.filter
}

func decode(n *events.Notification, v any) error {
	if len(n.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	if err := json.Unmarshal(n.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// resolveNode returns facts for a host that is not in the model yet. known
// is true when the model already has the node. A failed lookup yields
// (nil, false).
func (b *base) resolveNode(ctx context.Context, host string) (facts *compute.NodeFacts, known bool) {
	b.slot.View(func(m *model.ClusterModel) {
		if m != nil {
			_, known = m.LookupNode(host)
		}
	})
	if known {
		return nil, true
	}
	if b.facts == nil {
		return nil, false
	}

	f, err := b.facts.GetNodeByHostname(ctx, host)
	if err != nil {
		log.Logger.Warn().Err(err).Str("host", host).Msg("Could not resolve compute node")
		return nil, false
	}
	return f, false
}

// ensureNode adds a node from facts when the model lacks it. It reports
// whether the node is present afterwards.
func ensureNode(m *model.ClusterModel, host string, facts *compute.NodeFacts) bool {
	if _, ok := m.LookupNode(host); ok {
		return true
	}
	if facts == nil {
		return false
	}
	facts.RecordAs(m, host)
	log.Logger.Debug().Str("node", host).Msg("New compute node created")
	return true
}

// applyInstance performs get-or-create on the workload, overwrites its
// declared fields and reconciles its placement
func (b *base) applyInstance(ctx context.Context, u instanceUpdate) error {
	if u.uuid == "" {
		return fmt.Errorf("%w: missing instance uuid", ErrMalformedPayload)
	}

	var nodeFacts *compute.NodeFacts
	if u.host != "" {
		nodeFacts, _ = b.resolveNode(ctx, u.host)
	}

	return b.slot.Update(func(m *model.ClusterModel) error {
		w, ok := m.LookupWorkload(u.uuid)
		if !ok {
			w = &model.Workload{UUID: u.uuid}
			m.AddWorkload(w)
			log.Logger.Debug().Str("workload", u.uuid).Msg("New workload created")
		}
		w.State = u.state
		w.Hostname = u.hostname
		w.DisplayName = u.displayName

		setCapacity(m, u.uuid, u.memoryMB, model.ResourceMemory)
		setCapacity(m, u.uuid, u.vcpus, model.ResourceCPUCores)
		setCapacity(m, u.uuid, u.diskGB, model.ResourceDisk, model.ResourceDiskCapacity)

		current, placed := m.NodeOf(u.uuid)
		if u.host == "" {
			log.Logger.Debug().Str("workload", u.uuid).Msg("Workload not attached to any node")
			return nil
		}
		if !ensureNode(m, u.host, nodeFacts) {
			if placed {
				m.Unmap(u.uuid, current)
			}
			log.Logger.Warn().Str("workload", u.uuid).Str("host", u.host).Msg("Node unresolved, workload left unmapped")
			return nil
		}
		if placed && current != u.host {
			log.Logger.Debug().Str("workload", u.uuid).Str("from", current).Str("to", u.host).Msg("Remapping workload")
			m.Unmap(u.uuid, current)
		}
		return m.Map(u.uuid, u.host)
	})
}

func setCapacity(m *model.ClusterModel, id string, value *float64, resources ...model.ResourceType) {
	if value == nil {
		return
	}
	for _, r := range resources {
		m.Resource(r).SetCapacity(id, *value)
	}
}

// deleteInstance removes a workload. Unknown workloads are ignored.
func (b *base) deleteInstance(uuid string) error {
	if uuid == "" {
		return fmt.Errorf("%w: missing instance uuid", ErrMalformedPayload)
	}
	return b.slot.Update(func(m *model.ClusterModel) error {
		if _, ok := m.LookupWorkload(uuid); !ok {
			log.Logger.Debug().Str("workload", uuid).Msg("Workload already deleted")
			return nil
		}
		m.RemoveWorkload(uuid)
		return nil
	})
}

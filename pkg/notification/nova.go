package notification

import (
	"context"
	"fmt"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/model"
)

// NewEndpoints returns every compute endpoint bound to one slot
func NewEndpoints(slot *collector.Slot, facts compute.Facts) []Endpoint {
	return []Endpoint{
		NewServiceUpdated(slot, facts),
		NewInstanceCreated(slot, facts),
		NewInstanceUpdated(slot, facts),
		NewInstanceDeletedEnd(slot, facts),
		NewLegacyInstanceUpdated(slot, facts),
		NewLegacyInstanceCreatedEnd(slot, facts),
		NewLegacyInstanceDeletedEnd(slot, facts),
		NewLegacyLiveMigratedEnd(slot, facts),
	}
}

// ServiceUpdated applies service.update: a node forced down goes offline, a
// disabled service disables the node
type ServiceUpdated struct{ base }

func NewServiceUpdated(slot *collector.Slot, facts compute.Facts) *ServiceUpdated {
	return &ServiceUpdated{base{
		name:   "ServiceUpdated",
		filter: Filter{PublisherID: VersionedPublisher, EventType: events.EventServiceUpdate},
		slot:   slot,
		facts:  facts,
	}}
}

func (e *ServiceUpdated) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.ServicePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	host := p.Data.Host
	if host == "" {
		return fmt.Errorf("%w: missing service host", ErrMalformedPayload)
	}

	facts, _ := e.resolveNode(ctx, host)
	return e.slot.Update(func(m *model.ClusterModel) error {
		if !ensureNode(m, host, facts) {
			m.AddNode(&model.ComputeNode{ID: host, Hostname: host})
			log.Logger.Debug().Str("node", host).Msg("Placeholder compute node created")
		}
		node, err := m.Node(host)
		if err != nil {
			return err
		}
		node.Hostname = host
		node.State = model.NodeStateOnline
		if p.Data.ForcedDown {
			node.State = model.NodeStateOffline
		}
		node.Status = model.NodeStatusEnabled
		if p.Data.Disabled {
			node.Status = model.NodeStatusDisabled
		}
		return nil
	})
}

func versionedUpdate(p *compute.InstancePayload) instanceUpdate {
	d := p.Data
	u := instanceUpdate{
		uuid:        d.UUID,
		state:       model.WorkloadState(d.State),
		hostname:    d.HostName,
		displayName: d.DisplayName,
		memoryMB:    d.Flavor.Data.MemoryMB,
		vcpus:       d.Flavor.Data.VCPUs,
		diskGB:      d.Flavor.Data.RootGB,
	}
	if d.Host != nil {
		u.host = *d.Host
	}
	return u
}

// isCreation reports a building -> active transition
func isCreation(n *events.Notification) bool {
	var p compute.InstancePayload
	if err := decode(n, &p); err != nil {
		return false
	}
	if p.Data.State != string(model.WorkloadStateActive) || p.Data.StateUpdate == nil {
		return false
	}
	su := p.Data.StateUpdate.Data
	return su.OldState == string(model.WorkloadStateBuilding) && su.State == string(model.WorkloadStateActive)
}

// InstanceCreated applies instance.update for a workload that just finished
// building
type InstanceCreated struct{ base }

func NewInstanceCreated(slot *collector.Slot, facts compute.Facts) *InstanceCreated {
	return &InstanceCreated{base{
		name:   "InstanceCreated",
		filter: Filter{PublisherID: VersionedPublisher, EventType: events.EventInstanceUpdate, Payload: isCreation},
		slot:   slot,
		facts:  facts,
	}}
}

func (e *InstanceCreated) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.InstancePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	return e.applyInstance(ctx, versionedUpdate(&p))
}

// InstanceUpdated applies every other instance.update
type InstanceUpdated struct{ base }

func NewInstanceUpdated(slot *collector.Slot, facts compute.Facts) *InstanceUpdated {
	return &InstanceUpdated{base{
		name: "InstanceUpdated",
		filter: Filter{
			PublisherID: VersionedPublisher,
			EventType:   events.EventInstanceUpdate,
			Payload:     func(n *events.Notification) bool { return !isCreation(n) },
		},
		slot:  slot,
		facts: facts,
	}}
}

func (e *InstanceUpdated) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.InstancePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	return e.applyInstance(ctx, versionedUpdate(&p))
}

// InstanceDeletedEnd applies instance.delete.end
type InstanceDeletedEnd struct{ base }

func NewInstanceDeletedEnd(slot *collector.Slot, facts compute.Facts) *InstanceDeletedEnd {
	return &InstanceDeletedEnd{base{
		name:   "InstanceDeletedEnd",
		filter: Filter{PublisherID: VersionedPublisher, EventType: events.EventInstanceDeleteEnd},
		slot:   slot,
		facts:  facts,
	}}
}

func (e *InstanceDeletedEnd) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.InstancePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	return e.deleteInstance(p.Data.UUID)
}

func legacyUpdate(p *compute.LegacyInstancePayload) instanceUpdate {
	return instanceUpdate{
		uuid:        p.InstanceID,
		state:       model.WorkloadState(p.State),
		hostname:    p.Hostname,
		displayName: p.DisplayName,
		memoryMB:    p.MemoryMB,
		vcpus:       p.VCPUs,
		diskGB:      p.RootGB,
		host:        p.Host,
	}
}

// legacyInstance is shared by the unversioned update-style endpoints
type legacyInstance struct{ base }

func (e *legacyInstance) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.LegacyInstancePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	return e.applyInstance(ctx, legacyUpdate(&p))
}

func newLegacyInstance(name, eventType string, slot *collector.Slot, facts compute.Facts) legacyInstance {
	return legacyInstance{base{
		name:   name,
		filter: Filter{PublisherID: LegacyPublisher, EventType: eventType},
		slot:   slot,
		facts:  facts,
	}}
}

// LegacyInstanceUpdated applies compute.instance.update
type LegacyInstanceUpdated struct{ legacyInstance }

func NewLegacyInstanceUpdated(slot *collector.Slot, facts compute.Facts) *LegacyInstanceUpdated {
	return &LegacyInstanceUpdated{newLegacyInstance("LegacyInstanceUpdated", events.EventLegacyInstanceUpdate, slot, facts)}
}

// LegacyInstanceCreatedEnd applies compute.instance.create.end
type LegacyInstanceCreatedEnd struct{ legacyInstance }

func NewLegacyInstanceCreatedEnd(slot *collector.Slot, facts compute.Facts) *LegacyInstanceCreatedEnd {
	return &LegacyInstanceCreatedEnd{newLegacyInstance("LegacyInstanceCreatedEnd", events.EventLegacyInstanceCreated, slot, facts)}
}

// LegacyLiveMigratedEnd applies compute.instance.live_migration.post.dest.end
type LegacyLiveMigratedEnd struct{ legacyInstance }

func NewLegacyLiveMigratedEnd(slot *collector.Slot, facts compute.Facts) *LegacyLiveMigratedEnd {
	return &LegacyLiveMigratedEnd{newLegacyInstance("LegacyLiveMigratedEnd", events.EventLegacyLiveMigrated, slot, facts)}
}

// LegacyInstanceDeletedEnd applies compute.instance.delete.end
type LegacyInstanceDeletedEnd struct{ base }

func NewLegacyInstanceDeletedEnd(slot *collector.Slot, facts compute.Facts) *LegacyInstanceDeletedEnd {
	return &LegacyInstanceDeletedEnd{base{
		name:   "LegacyInstanceDeletedEnd",
		filter: Filter{PublisherID: LegacyPublisher, EventType: events.EventLegacyInstanceDeleted},
		slot:   slot,
		facts:  facts,
	}}
}

func (e *LegacyInstanceDeletedEnd) Apply(ctx context.Context, n *events.Notification) error {
	var p compute.LegacyInstancePayload
	if err := decode(n, &p); err != nil {
		return err
	}
	return e.deleteInstance(p.InstanceID)
}

package model

import (
	"fmt"
	"sort"
	"strings"
)

// ClusterModel is the in-memory topology of hosts, workloads and their
// capacities. It does no locking of its own; owners serialize access.
type ClusterModel struct {
	nodes     map[string]*ComputeNode
	workloads map[string]*Workload
	mapping   *Mapping
	resources map[ResourceType]*ResourceLedger
	stale     bool
}

// New creates an empty model with one ledger per resource type
func New() *ClusterModel {
	m := &ClusterModel{
		nodes:     make(map[string]*ComputeNode),
		workloads: make(map[string]*Workload),
		mapping:   NewMapping(),
		resources: make(map[ResourceType]*ResourceLedger, len(ResourceTypes)),
	}
	for _, t := range ResourceTypes {
		m.resources[t] = NewResourceLedger(t)
	}
	return m
}

// NewStale creates an empty model already flagged as stale
func NewStale() *ClusterModel {
	m := New()
	m.stale = true
	return m
}

// Stale reports whether the model must not be trusted for decisions
func (m *ClusterModel) Stale() bool {
	return m.stale
}

// SetStale sets the staleness flag
func (m *ClusterModel) SetStale(stale bool) {
	m.stale = stale
}

// Node returns a node by id
func (m *ClusterModel) Node(id string) (*ComputeNode, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, NodeNotFound(id)
	}
	return n, nil
}

// LookupNode returns a node by id and whether it exists
func (m *ClusterModel) LookupNode(id string) (*ComputeNode, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Workload returns a workload by id
func (m *ClusterModel) Workload(id string) (*Workload, error) {
	w, ok := m.workloads[id]
	if !ok {
		return nil, WorkloadNotFound(id)
	}
	return w, nil
}

// LookupWorkload returns a workload by id and whether it exists
func (m *ClusterModel) LookupWorkload(id string) (*Workload, bool) {
	w, ok := m.workloads[id]
	return w, ok
}

// AddNode inserts or replaces a node keyed by its id
func (m *ClusterModel) AddNode(n *ComputeNode) {
	m.nodes[n.ID] = n
}

// AddWorkload inserts or replaces a workload keyed by its uuid
func (m *ClusterModel) AddWorkload(w *Workload) {
	m.workloads[w.UUID] = w
}

// RemoveWorkload deletes a workload, its mapping and its ledger entries.
// Removing an absent workload is a no-op.
func (m *ClusterModel) RemoveWorkload(id string) {
	if node, ok := m.mapping.NodeOf(id); ok {
		m.mapping.Unmap(id, node)
	}
	delete(m.workloads, id)
	for _, r := range m.resources {
		r.Remove(id)
	}
}

// Map places a workload on a node, moving it away from any previous node
func (m *ClusterModel) Map(workloadID, nodeID string) error {
	if _, ok := m.workloads[workloadID]; !ok {
		return WorkloadNotFound(workloadID)
	}
	if _, ok := m.nodes[nodeID]; !ok {
		return NodeNotFound(nodeID)
	}
	m.mapping.Map(workloadID, nodeID)
	return nil
}

// Unmap removes a placement; no-op when absent
func (m *ClusterModel) Unmap(workloadID, nodeID string) {
	m.mapping.Unmap(workloadID, nodeID)
}

// NodeOf returns the node a workload is placed on
func (m *ClusterModel) NodeOf(workloadID string) (string, bool) {
	return m.mapping.NodeOf(workloadID)
}

// WorkloadsOf returns the workloads placed on a node, sorted by id
func (m *ClusterModel) WorkloadsOf(nodeID string) []string {
	return m.mapping.WorkloadsOf(nodeID)
}

// Relocate moves a workload from one node to another. It returns false when
// the workload is not currently placed on from or to is unknown.
func (m *ClusterModel) Relocate(workloadID, from, to string) bool {
	current, ok := m.mapping.NodeOf(workloadID)
	if !ok || current != from {
		return false
	}
	if _, ok := m.nodes[to]; !ok {
		return false
	}
	m.mapping.Map(workloadID, to)
	return true
}

// Resource returns the ledger for a resource type
func (m *ClusterModel) Resource(t ResourceType) *ResourceLedger {
	r, ok := m.resources[t]
	if !ok {
		r = NewResourceLedger(t)
		m.resources[t] = r
	}
	return r
}

// Nodes returns every node id, sorted
func (m *ClusterModel) Nodes() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Workloads returns every workload id, sorted
func (m *ClusterModel) Workloads() []string {
	ids := make([]string, 0, len(m.workloads))
	for id := range m.workloads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of nodes
func (m *ClusterModel) Len() int {
	return len(m.nodes)
}

// DeepCopy returns a full value copy sharing no mutable state with m
func (m *ClusterModel) DeepCopy() *ClusterModel {
	c := &ClusterModel{
		nodes:     make(map[string]*ComputeNode, len(m.nodes)),
		workloads: make(map[string]*Workload, len(m.workloads)),
		mapping:   m.mapping.DeepCopy(),
		resources: make(map[ResourceType]*ResourceLedger, len(m.resources)),
		stale:     m.stale,
	}
	for id, n := range m.nodes {
		cn := *n
		c.nodes[id] = &cn
	}
	for id, w := range m.workloads {
		cw := *w
		c.workloads[id] = &cw
	}
	for t, r := range m.resources {
		c.resources[t] = r.DeepCopy()
	}
	return c
}

// String renders the topology for debug logging
func (m *ClusterModel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model(nodes=%d workloads=%d stale=%t)\n", len(m.nodes), len(m.workloads), m.stale)
	cores := m.Resource(ResourceCPUCores)
	for _, id := range m.Nodes() {
		n := m.nodes[id]
		fmt.Fprintf(&b, "  node %s state=%s status=%s cores=%v\n", id, n.State, n.Status, cores.CapacityOrZero(id))
		for _, w := range m.WorkloadsOf(id) {
			fmt.Fprintf(&b, "    workload %s state=%s cores=%v\n", w, m.workloads[w].State, cores.CapacityOrZero(w))
		}
	}
	return b.String()
}

package model

import "sort"

// Mapping is the bidirectional node <-> workload placement relation.
// Every workload in a node's set maps back to that node and vice versa.
type Mapping struct {
	nodeWorkloads map[string]map[string]struct{}
	workloadNode  map[string]string
}

// NewMapping creates an empty mapping
func NewMapping() *Mapping {
	return &Mapping{
		nodeWorkloads: make(map[string]map[string]struct{}),
		workloadNode:  make(map[string]string),
	}
}

// Map places a workload on a node. A workload already placed on another node
// is removed from that node first.
func (m *Mapping) Map(workloadID, nodeID string) {
	if old, ok := m.workloadNode[workloadID]; ok {
		if old == nodeID {
			return
		}
		m.Unmap(workloadID, old)
	}

	set, ok := m.nodeWorkloads[nodeID]
	if !ok {
		set = make(map[string]struct{})
		m.nodeWorkloads[nodeID] = set
	}
	set[workloadID] = struct{}{}
	m.workloadNode[workloadID] = nodeID
}

// Unmap removes the pairing in both directions. It is a no-op when the
// workload is not placed on nodeID.
func (m *Mapping) Unmap(workloadID, nodeID string) {
	if current, ok := m.workloadNode[workloadID]; !ok || current != nodeID {
		return
	}
	delete(m.workloadNode, workloadID)
	if set, ok := m.nodeWorkloads[nodeID]; ok {
		delete(set, workloadID)
		if len(set) == 0 {
			delete(m.nodeWorkloads, nodeID)
		}
	}
}

// NodeOf returns the node a workload is placed on
func (m *Mapping) NodeOf(workloadID string) (string, bool) {
	n, ok := m.workloadNode[workloadID]
	return n, ok
}

// WorkloadsOf returns the workloads placed on a node, sorted by id
func (m *Mapping) WorkloadsOf(nodeID string) []string {
	set := m.nodeWorkloads[nodeID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Placements returns the number of placed workloads
func (m *Mapping) Placements() int {
	return len(m.workloadNode)
}

// DeepCopy returns an independent copy of the mapping
func (m *Mapping) DeepCopy() *Mapping {
	c := &Mapping{
		nodeWorkloads: make(map[string]map[string]struct{}, len(m.nodeWorkloads)),
		workloadNode:  make(map[string]string, len(m.workloadNode)),
	}
	for node, set := range m.nodeWorkloads {
		cs := make(map[string]struct{}, len(set))
		for w := range set {
			cs[w] = struct{}{}
		}
		c.nodeWorkloads[node] = cs
	}
	for w, n := range m.workloadNode {
		c.workloadNode[w] = n
	}
	return c
}

package compute

import (
	"context"

	"github.com/cuemby/rebalancer/pkg/model"
)

// NodeFacts is what the compute service reports about a hypervisor
type NodeFacts struct {
	ID         string           `json:"id" yaml:"id"`
	Hostname   string           `json:"hostname" yaml:"hostname"`
	State      model.NodeState  `json:"state" yaml:"state"`
	Status     model.NodeStatus `json:"status" yaml:"status"`
	VCPUs      float64          `json:"vcpus" yaml:"vcpus"`
	MemoryMB   float64          `json:"memory_mb" yaml:"memory_mb"`
	FreeDiskGB float64          `json:"free_disk_gb" yaml:"free_disk_gb"`
	LocalGB    float64          `json:"local_gb" yaml:"local_gb"`
}

// InstanceFacts is what the compute service reports about a workload
type InstanceFacts struct {
	UUID        string              `json:"uuid" yaml:"uuid"`
	Host        string              `json:"host" yaml:"host"`
	Hostname    string              `json:"hostname" yaml:"hostname"`
	State       model.WorkloadState `json:"state" yaml:"state"`
	DisplayName string              `json:"display_name" yaml:"display_name"`
	VCPUs       float64             `json:"vcpus" yaml:"vcpus"`
	MemoryMB    float64             `json:"memory_mb" yaml:"memory_mb"`
	RootGB      float64             `json:"root_gb" yaml:"root_gb"`
}

// Facts is the read side of the compute service
type Facts interface {
	// GetNodeByHostname returns model.ErrEntityNotFound when the host is unknown
	GetNodeByHostname(ctx context.Context, hostname string) (*NodeFacts, error)
	ListNodes(ctx context.Context) ([]*NodeFacts, error)
	ListInstances(ctx context.Context) ([]*InstanceFacts, error)
}

// NodeID returns the logical id used for the node in the model. Hostname
// wins; the compute service id is the fallback.
func (f *NodeFacts) NodeID() string {
	if f.Hostname != "" {
		return f.Hostname
	}
	return f.ID
}

// ToNode converts facts into a model node keyed by NodeID
func (f *NodeFacts) ToNode() *model.ComputeNode {
	n := &model.ComputeNode{
		ID:       f.NodeID(),
		UUID:     f.ID,
		Hostname: f.Hostname,
		State:    f.State,
		Status:   f.Status,
	}
	if n.State == "" {
		n.State = model.NodeStateOnline
	}
	if n.Status == "" {
		n.Status = model.NodeStatusEnabled
	}
	return n
}

// Record writes the node and its capacities into m
func (f *NodeFacts) Record(m *model.ClusterModel) *model.ComputeNode {
	return f.RecordAs(m, f.NodeID())
}

// RecordAs is Record with an explicit model id, used when the node is
// referenced by a name other than its hostname
func (f *NodeFacts) RecordAs(m *model.ClusterModel, id string) *model.ComputeNode {
	n := f.ToNode()
	n.ID = id
	m.AddNode(n)
	m.Resource(model.ResourceMemory).SetCapacity(id, f.MemoryMB)
	m.Resource(model.ResourceCPUCores).SetCapacity(id, f.VCPUs)
	m.Resource(model.ResourceDisk).SetCapacity(id, f.FreeDiskGB)
	m.Resource(model.ResourceDiskCapacity).SetCapacity(id, f.LocalGB)
	return n
}

// Record writes the workload and its capacities into m. Placement is left to
// the caller.
func (f *InstanceFacts) Record(m *model.ClusterModel) *model.Workload {
	w := &model.Workload{
		UUID:        f.UUID,
		State:       f.State,
		Hostname:    f.Hostname,
		DisplayName: f.DisplayName,
	}
	m.AddWorkload(w)
	m.Resource(model.ResourceMemory).SetCapacity(w.UUID, f.MemoryMB)
	m.Resource(model.ResourceCPUCores).SetCapacity(w.UUID, f.VCPUs)
	m.Resource(model.ResourceDisk).SetCapacity(w.UUID, f.RootGB)
	m.Resource(model.ResourceDiskCapacity).SetCapacity(w.UUID, f.RootGB)
	return w
}

package model

// NodeState is the service state of a compute node
type NodeState string

const (
	NodeStateOnline  NodeState = "online"
	NodeStateOffline NodeState = "offline"
)

// NodeStatus is the administrative status of a compute node
type NodeStatus string

const (
	NodeStatusEnabled  NodeStatus = "enabled"
	NodeStatusDisabled NodeStatus = "disabled"
)

// ComputeNode is a host capable of running workloads.
// Nodes are never removed from a model, only marked offline or disabled.
type ComputeNode struct {
	ID       string // stable logical id (hostname)
	UUID     string
	Hostname string
	State    NodeState
	Status   NodeStatus
}

// Available reports whether the node can receive workloads
func (n *ComputeNode) Available() bool {
	return n.State == NodeStateOnline && n.Status == NodeStatusEnabled
}

// WorkloadState is the lifecycle state of a workload
type WorkloadState string

const (
	WorkloadStateActive      WorkloadState = "active"
	WorkloadStateBuilding    WorkloadState = "building"
	WorkloadStatePaused      WorkloadState = "paused"
	WorkloadStateSuspended   WorkloadState = "suspended"
	WorkloadStateStopped     WorkloadState = "stopped"
	WorkloadStateShutoff     WorkloadState = "shutoff"
	WorkloadStateRescued     WorkloadState = "rescued"
	WorkloadStateResized     WorkloadState = "resized"
	WorkloadStateSoftDeleted WorkloadState = "soft-delete"
	WorkloadStateDeleted     WorkloadState = "deleted"
	WorkloadStateError       WorkloadState = "error"
)

// Workload is a unit of work (a virtual machine) placed on at most one node
type Workload struct {
	UUID        string
	State       WorkloadState
	Hostname    string // host label reported by the compute service
	DisplayName string
}

// Active reports whether the workload is running
func (w *Workload) Active() bool {
	return w.State == WorkloadStateActive
}

// Terminal reports whether the workload reached an end-of-life state
func (w *Workload) Terminal() bool {
	switch w.State {
	case WorkloadStateDeleted, WorkloadStateSoftDeleted, WorkloadStateError:
		return true
	}
	return false
}

package strategy

import (
	"sort"

	"github.com/cuemby/rebalancer/pkg/model"
)

// HostMetric pairs a node with one telemetry reading
type HostMetric struct {
	Node  *model.ComputeNode
	Value float64
}

// groupByThreshold splits hosts into those at or over the threshold and
// those under it. Input order is kept within each group.
func groupByThreshold(hosts []HostMetric, threshold float64) (over, under []HostMetric) {
	for _, h := range hosts {
		if h.Value >= threshold {
			over = append(over, h)
		} else {
			under = append(under, h)
		}
	}
	return over, under
}

func sortDescending(hosts []HostMetric) {
	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Value > hosts[j].Value
	})
}

func sortAscending(hosts []HostMetric) {
	sort.SliceStable(hosts, func(i, j int) bool {
		return hosts[i].Value < hosts[j].Value
	})
}

// resources is a cores/memory/disk triple
type resources struct {
	Cores  float64
	Memory float64
	Disk   float64
}

func (r resources) covers(need resources) bool {
	return r.Cores >= need.Cores && r.Memory >= need.Memory && r.Disk >= need.Disk
}

// capacity returns the recorded cores, memory and disk of an entity
func capacity(m *model.ClusterModel, id string) resources {
	return resources{
		Cores:  m.Resource(model.ResourceCPUCores).CapacityOrZero(id),
		Memory: m.Resource(model.ResourceMemory).CapacityOrZero(id),
		Disk:   m.Resource(model.ResourceDisk).CapacityOrZero(id),
	}
}

// usedResources sums the capacities of the workloads currently mapped to a
// node. It is recomputed from the mapping on every call.
func usedResources(m *model.ClusterModel, nodeID string) resources {
	var used resources
	for _, w := range m.WorkloadsOf(nodeID) {
		c := capacity(m, w)
		used.Cores += c.Cores
		used.Memory += c.Memory
		used.Disk += c.Disk
	}
	return used
}

// available returns what a node can still accept
func available(m *model.ClusterModel, nodeID string) resources {
	total := capacity(m, nodeID)
	used := usedResources(m, nodeID)
	return resources{
		Cores:  total.Cores - used.Cores,
		Memory: total.Memory - used.Memory,
		Disk:   total.Disk - used.Disk,
	}
}

// fits reports whether a workload's cores, memory and disk fit on a node
func fits(m *model.ClusterModel, workloadID, nodeID string) bool {
	return available(m, nodeID).covers(capacity(m, workloadID))
}

// selectDonor returns the first workload on a node, in listed order, that
// is active and passes eligible. A nil eligible accepts every active
// workload.
func selectDonor(m *model.ClusterModel, nodeID string, eligible func(*model.Workload) bool) (*model.Workload, bool) {
	for _, id := range m.WorkloadsOf(nodeID) {
		w, ok := m.LookupWorkload(id)
		if !ok || !w.Active() {
			continue
		}
		if eligible == nil || eligible(w) {
			return w, true
		}
	}
	return nil, false
}

// activeWorkloads keeps the ids of active workloads, in order
func activeWorkloads(m *model.ClusterModel, ids []string) []string {
	var out []string
	for _, id := range ids {
		if w, ok := m.LookupWorkload(id); ok && w.Active() {
			out = append(out, id)
		}
	}
	return out
}

// pickDestination returns the first candidate, in the given order, that
// is available, can hold the workload and passes accept. Candidates are
// expected sorted by ascending metric, so ties resolve by original order.
func pickDestination(m *model.ClusterModel, candidates []HostMetric, workloadID string, accept func(HostMetric) bool) (HostMetric, bool) {
	for _, c := range candidates {
		if !c.Node.Available() || !fits(m, workloadID, c.Node.ID) {
			continue
		}
		if accept != nil && !accept(c) {
			continue
		}
		return c, true
	}
	return HostMetric{}, false
}

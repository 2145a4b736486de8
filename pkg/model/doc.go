/*
Package model provides the in-memory cluster data model consumed by the
placement strategies.

A ClusterModel holds three things: the entities (compute nodes and
workloads), the placement mapping between them, and one ResourceLedger per
resource type. Ledgers are keyed by entity id and hold nodes and workloads
side by side, so "cpu_cores" answers both "how many cores does host-1
have" and "how many cores does vm-7 use".

# Architecture

	┌──────────────────── CLUSTER MODEL ─────────────────────┐
	│                                                          │
	│   nodes      map[id]*ComputeNode                         │
	│   workloads  map[uuid]*Workload                          │
	│                                                          │
	│   ┌──────────────── Mapping ────────────────┐            │
	│   │ node ──► {workload, workload, ...}       │            │
	│   │ workload ──► node                        │            │
	│   └──────────────────────────────────────────┘            │
	│                                                          │
	│   ┌──────────── ResourceLedgers ────────────┐            │
	│   │ cpu_cores      id ──► float64            │            │
	│   │ memory         id ──► float64 (MB)       │            │
	│   │ disk           id ──► float64 (GB)       │            │
	│   │ disk_capacity  id ──► float64 (GB)       │            │
	│   └──────────────────────────────────────────┘            │
	│                                                          │
	│   stale bool                                             │
	└──────────────────────────────────────────────────────────┘

# Invariants

  - The mapping is symmetric: NodeOf(w) == n exactly when w is in
    WorkloadsOf(n).
  - A workload is placed on at most one node.
  - A ledger entry that is absent means unknown, never zero.
  - DeepCopy shares nothing mutable with its source.

A model carries no lock. The collector.Slot that owns the published model
serializes mutation; strategies only ever receive a deep copy and may
mutate it freely while simulating migrations.

# Usage

	m := model.New()
	m.AddNode(&model.ComputeNode{ID: "host-1", State: model.NodeStateOnline, Status: model.NodeStatusEnabled})
	m.AddWorkload(&model.Workload{UUID: "vm-1", State: model.WorkloadStateActive})
	m.Resource(model.ResourceCPUCores).SetCapacity("host-1", 40)
	m.Resource(model.ResourceCPUCores).SetCapacity("vm-1", 4)
	if err := m.Map("vm-1", "host-1"); err != nil {
		return err
	}

	sim := m.DeepCopy()
	sim.Relocate("vm-1", "host-1", "host-2")

Lookups of unknown entities return errors wrapping ErrEntityNotFound, which
itself wraps errdefs.ErrNotFound.
*/
package model

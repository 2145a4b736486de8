package strategy

import (
	"context"
	"fmt"

	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

var workloadBalanceInfo = Info{
	Name:        "workload_balance",
	Goal:        GoalWorkloadBalancing,
	DisplayName: "Workload Balance Migration Strategy",
	Schema: []ParamSpec{
		{Name: "threshold", Type: TypeNumber, Default: 25.0, Description: "workload threshold for migration, in percent of host cpu"},
		{Name: "period", Type: TypeNumber, Default: 300.0, Description: "aggregate time period of telemetry, in seconds"},
	},
}

// WorkloadBalance moves one workload off the busiest host when host cpu
// utilization reaches the threshold. The donor is the workload whose load
// best brings its host back to the cluster average.
type WorkloadBalance struct {
	Base
}

func newWorkloadBalance(deps Deps, params Parameters) (Strategy, error) {
	return &WorkloadBalance{Base: newBase(workloadBalanceInfo, deps, params)}, nil
}

// hostLoad is a host's cpu picture in absolute cores
type hostLoad struct {
	HostMetric
	Cores    float64
	Workload float64
}

// DoExecute plans at most one migration
func (s *WorkloadBalance) DoExecute(ctx context.Context) error {
	threshold := s.params.Float("threshold")
	window := seconds(s.params.Float("period"))

	loads := make(map[string]float64)
	var hosts []hostLoad
	var clusterWorkload float64
	cores := s.model.Resource(model.ResourceCPUCores)

	for _, id := range s.model.Nodes() {
		node, _ := s.model.LookupNode(id)
		nodeCores, ok := cores.Capacity(id)
		if !ok || nodeCores <= 0 {
			s.logger.Warn().Str("node", id).Msg("No cores capacity for host, skipping")
			continue
		}

		var nodeWorkload float64
		for _, w := range s.model.WorkloadsOf(id) {
			util, ok, err := s.telemetry.Aggregate(ctx, w, telemetry.MeterCPUUtil, window, telemetry.Avg)
			if err != nil {
				return fmt.Errorf("failed to read %s for %s: %w", telemetry.MeterCPUUtil, w, err)
			}
			if !ok {
				s.logger.Warn().Str("workload", w).Msg("No cpu_util data for workload, skipping")
				continue
			}
			load := util * cores.CapacityOrZero(w) / 100
			loads[w] = load
			nodeWorkload += load
		}

		clusterWorkload += nodeWorkload
		hosts = append(hosts, hostLoad{
			HostMetric: HostMetric{Node: node, Value: nodeWorkload / nodeCores * 100},
			Cores:      nodeCores,
			Workload:   nodeWorkload,
		})
	}
	if len(hosts) == 0 {
		s.logger.Warn().Msg("No host has cores capacity, nothing to balance")
		return nil
	}
	average := clusterWorkload / float64(len(hosts))

	byID := make(map[string]hostLoad, len(hosts))
	readings := make([]HostMetric, 0, len(hosts))
	for _, h := range hosts {
		byID[h.Node.ID] = h
		readings = append(readings, h.HostMetric)
	}

	over, under := groupByThreshold(readings, threshold)
	if len(over) == 0 {
		s.logger.Debug().Float64("threshold", threshold).Msg("No hosts require optimization")
		return nil
	}
	if len(under) == 0 {
		s.logger.Warn().Float64("threshold", threshold).Msg("No hosts under threshold, no possible target for migration")
		return nil
	}
	sortDescending(over)
	sortAscending(under)

	for _, src := range over {
		donor, ok := s.chooseDonor(src.Node.ID, byID[src.Node.ID].Workload-average, loads)
		if !ok {
			s.logger.Debug().Str("node", src.Node.ID).Msg("No active workload to migrate on host")
			continue
		}
		load := loads[donor.UUID]

		dst, ok := pickDestination(s.model, under, donor.UUID, func(c HostMetric) bool {
			h := byID[c.Node.ID]
			return load+h.Workload < threshold/100*h.Cores
		})
		if !ok {
			s.logger.Warn().Str("workload", donor.UUID).Msg("No destination host can take the workload")
			continue
		}

		if err := s.migrate(donor.UUID, src.Node.ID, dst.Node.ID); err != nil {
			s.logger.Warn().Err(err).Msg("Relocation refused")
			continue
		}
		return nil
	}
	return nil
}

// chooseDonor prefers the active workload whose load is the largest that
// still fits in the host's excess over the average. Without such a
// workload the first active one with known load is used.
func (s *WorkloadBalance) chooseDonor(nodeID string, excess float64, loads map[string]float64) (*model.Workload, bool) {
	var best *model.Workload
	bestDelta := 0.0
	for _, id := range s.model.WorkloadsOf(nodeID) {
		w, ok := s.model.LookupWorkload(id)
		if !ok || !w.Active() {
			continue
		}
		load, known := loads[id]
		if !known {
			continue
		}
		delta := excess - load
		if delta >= 0 && (best == nil || delta < bestDelta) {
			best, bestDelta = w, delta
		}
	}
	if best != nil {
		return best, true
	}
	return selectDonor(s.model, nodeID, func(w *model.Workload) bool {
		_, known := loads[w.UUID]
		return known
	})
}

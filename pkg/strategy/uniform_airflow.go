package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

var uniformAirflowInfo = Info{
	Name:        "uniform_airflow",
	Goal:        GoalAirflowOptimization,
	DisplayName: "Uniform airflow migration strategy",
	Schema: []ParamSpec{
		{Name: "threshold_airflow", Type: TypeNumber, Default: 400.0, Description: "airflow threshold for migration, in 0.1 CFM"},
		{Name: "threshold_inlet_t", Type: TypeNumber, Default: 28.0, Description: "inlet temperature threshold for migration decision"},
		{Name: "threshold_power", Type: TypeNumber, Default: 350.0, Description: "system power threshold for migration decision"},
		{Name: "period", Type: TypeNumber, Default: 300.0, Description: "aggregate time period of telemetry, in seconds"},
	},
}

// UniformAirflow relieves the host with the highest airflow. A host whose
// power and inlet temperature are both low while its airflow is high is
// treated as faulty hardware and fully evacuated.
type UniformAirflow struct {
	Base
}

func newUniformAirflow(deps Deps, params Parameters) (Strategy, error) {
	return &UniformAirflow{Base: newBase(uniformAirflowInfo, deps, params)}, nil
}

type placement struct {
	workload string
	dst      string
}

// DoExecute plans the migrations off one source host, all or nothing
func (s *UniformAirflow) DoExecute(ctx context.Context) error {
	threshold := s.params.Float("threshold_airflow")
	window := seconds(s.params.Float("period"))

	hosts, err := s.hostMetrics(ctx, telemetry.MeterAirflow, window)
	if err != nil {
		return err
	}

	over, under := groupByThreshold(hosts, threshold)
	if len(over) == 0 {
		s.logger.Debug().Float64("threshold", threshold).Msg("No hosts require optimization")
		return nil
	}
	if len(under) == 0 {
		s.logger.Warn().Float64("threshold", threshold).Msg("No hosts have airflow under threshold, no possible target for migration")
		return nil
	}
	sortDescending(over)
	sortAscending(under)

	src, workloads, err := s.chooseWorkloads(ctx, over)
	if err != nil {
		return err
	}
	if len(workloads) == 0 {
		return nil
	}

	plan, ok := s.planPlacements(workloads, under)
	if !ok {
		s.logger.Warn().Str("node", src).Msg("Not all target hosts could be found, not enough resources")
		return nil
	}
	for _, p := range plan {
		if err := s.migrate(p.workload, src, p.dst); err != nil {
			s.logger.Warn().Err(err).Msg("Relocation refused")
		}
	}
	return nil
}

// chooseWorkloads walks source hosts from the highest airflow and returns
// the workloads to move off the first host that has any.
func (s *UniformAirflow) chooseWorkloads(ctx context.Context, sources []HostMetric) (string, []string, error) {
	window := seconds(s.params.Float("period"))

	for _, src := range sources {
		id := src.Node.ID
		placed := s.model.WorkloadsOf(id)
		if len(placed) == 0 {
			s.logger.Debug().Str("node", id).Msg("No workload on host")
			continue
		}

		fault, err := s.hardwareFault(ctx, id, window)
		if err != nil {
			return "", nil, err
		}
		if fault {
			active := activeWorkloads(s.model, placed)
			if len(active) == 0 {
				s.logger.Debug().Str("node", id).Msg("No active workload to evacuate on host")
				continue
			}
			s.logger.Info().Str("node", id).Msg("Low power and inlet temperature with high airflow, evacuating host")
			return id, active, nil
		}

		if w, ok := selectDonor(s.model, id, nil); ok {
			return id, []string{w.UUID}, nil
		}
		s.logger.Debug().Str("node", id).Msg("No active workload to migrate on host")
	}
	return "", nil, nil
}

func (s *UniformAirflow) hardwareFault(ctx context.Context, nodeID string, window time.Duration) (bool, error) {
	readings := make(map[string]float64, 2)
	for _, meter := range []string{telemetry.MeterInletTemp, telemetry.MeterPower} {
		v, ok, err := s.telemetry.Aggregate(ctx, nodeID, meter, window, telemetry.Avg)
		if err != nil {
			return false, fmt.Errorf("failed to read %s for %s: %w", meter, nodeID, err)
		}
		if !ok {
			return false, nil
		}
		readings[meter] = v
	}
	return readings[telemetry.MeterPower] < s.params.Float("threshold_power") &&
		readings[telemetry.MeterInletTemp] < s.params.Float("threshold_inlet_t"), nil
}

// planPlacements assigns every workload, largest first, to the lowest
// airflow host that can hold it. Placement runs on a scratch copy so that
// capacity is recomputed after each assignment without touching the
// working model until every workload has a home.
func (s *UniformAirflow) planPlacements(workloads []string, targets []HostMetric) ([]placement, bool) {
	scratch := s.model.DeepCopy()
	cores := scratch.Resource(model.ResourceCPUCores)

	ordered := append([]string(nil), workloads...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return cores.CapacityOrZero(ordered[i]) > cores.CapacityOrZero(ordered[j])
	})

	plan := make([]placement, 0, len(ordered))
	for _, w := range ordered {
		src, _ := scratch.NodeOf(w)
		dst, ok := pickDestination(scratch, targets, w, nil)
		if !ok {
			return nil, false
		}
		scratch.Relocate(w, src, dst.Node.ID)
		plan = append(plan, placement{workload: w, dst: dst.Node.ID})
	}
	return plan, true
}

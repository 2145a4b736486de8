package strategy

import (
	"context"

	"github.com/cuemby/rebalancer/pkg/telemetry"
)

var outletTemperatureInfo = Info{
	Name:        "outlet_temperature",
	Goal:        GoalThermalOptimization,
	DisplayName: "Outlet temperature based strategy",
	Schema: []ParamSpec{
		{Name: "threshold", Type: TypeNumber, Default: 35.0, Description: "outlet temperature threshold for migration"},
		{Name: "period", Type: TypeNumber, Default: 30.0, Description: "aggregate time period of telemetry, in seconds"},
	},
}

// OutletTemperature moves one workload from the hottest host, by outlet
// temperature, to the coolest host that can hold it.
type OutletTemperature struct {
	Base
}

func newOutletTemperature(deps Deps, params Parameters) (Strategy, error) {
	return &OutletTemperature{Base: newBase(outletTemperatureInfo, deps, params)}, nil
}

// DoExecute plans at most one migration
func (s *OutletTemperature) DoExecute(ctx context.Context) error {
	threshold := s.params.Float("threshold")

	hosts, err := s.hostMetrics(ctx, telemetry.MeterOutletTemp, seconds(s.params.Float("period")))
	if err != nil {
		return err
	}

	hot, targets := groupByThreshold(hosts, threshold)
	if len(hot) == 0 {
		s.logger.Debug().Float64("threshold", threshold).Msg("No hosts require optimization")
		return nil
	}
	if len(targets) == 0 {
		s.logger.Warn().Float64("threshold", threshold).Msg("No hosts under outlet temperature threshold, no possible target for migration")
		return nil
	}
	sortDescending(hot)
	sortAscending(targets)

	for _, src := range hot {
		donor, ok := selectDonor(s.model, src.Node.ID, nil)
		if !ok {
			s.logger.Debug().Str("node", src.Node.ID).Msg("No active workload to migrate on host")
			continue
		}

		dst, ok := pickDestination(s.model, targets, donor.UUID, nil)
		if !ok {
			s.logger.Warn().Str("workload", donor.UUID).Msg("No target host has enough resources")
			return nil
		}
		if err := s.migrate(donor.UUID, src.Node.ID, dst.Node.ID); err != nil {
			s.logger.Warn().Err(err).Msg("Relocation refused")
		}
		return nil
	}
	return nil
}

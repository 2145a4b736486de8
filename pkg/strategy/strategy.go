package strategy

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/model"
	"github.com/cuemby/rebalancer/pkg/telemetry"
)

// Goals served by the built-in strategies
const (
	GoalWorkloadBalancing   = "workload_balancing"
	GoalThermalOptimization = "thermal_optimization"
	GoalAirflowOptimization = "airflow_optimization"
)

// GoalDisplayNames maps each known goal to a human readable name
var GoalDisplayNames = map[string]string{
	GoalWorkloadBalancing:   "Workload Balancing",
	GoalThermalOptimization: "Thermal Optimization",
	GoalAirflowOptimization: "Airflow Optimization",
}

// IndicatorMigrations counts the migrations a solution plans
const IndicatorMigrations = "instance_migrations_count"

// Strategy is one placement algorithm. The executor drives the three phases
// in order and stops at the first error.
type Strategy interface {
	Name() string
	Goal() string
	DisplayName() string

	PreExecute(ctx context.Context) error
	DoExecute(ctx context.Context) error
	PostExecute(ctx context.Context) error

	Solution() *Solution
}

// Deps are the collaborators handed to a strategy factory
type Deps struct {
	// Model is a private copy the strategy may mutate freely
	Model     *model.ClusterModel
	Telemetry telemetry.Aggregator
	// Rand drives randomized host choice. Nil means time seeded.
	Rand *rand.Rand
}

// Base carries the state shared by every strategy: the working model, the
// telemetry source, resolved parameters and the solution under
// construction.
type Base struct {
	name        string
	goal        string
	displayName string

	model     *model.ClusterModel
	telemetry telemetry.Aggregator
	params    Parameters
	solution  *Solution
	logger    zerolog.Logger

	migrations int
}

func newBase(info Info, deps Deps, params Parameters) Base {
	return Base{
		name:        info.Name,
		goal:        info.Goal,
		displayName: info.DisplayName,
		model:       deps.Model,
		telemetry:   deps.Telemetry,
		params:      params,
		solution:    NewSolution(info.Name),
		logger:      log.WithStrategy(info.Name),
	}
}

// Name returns the strategy name
func (b *Base) Name() string {
	return b.name
}

// Goal returns the goal the strategy serves
func (b *Base) Goal() string {
	return b.goal
}

// DisplayName returns the human readable strategy name
func (b *Base) DisplayName() string {
	return b.displayName
}

// Solution returns the solution being built
func (b *Base) Solution() *Solution {
	return b.solution
}

// Parameters returns the resolved input parameters
func (b *Base) Parameters() Parameters {
	return b.params
}

// PreExecute refuses to run on an undefined, stale or empty model
func (b *Base) PreExecute(ctx context.Context) error {
	if err := b.checkModel(); err != nil {
		return err
	}
	b.logger.Debug().Msg(b.model.String())
	return nil
}

// PostExecute attaches the final model and freezes the solution
func (b *Base) PostExecute(ctx context.Context) error {
	b.solution.SetIndicator(IndicatorMigrations, float64(b.migrations))
	b.solution.Model = b.model
	b.solution.Freeze()
	b.logger.Debug().Msg(b.model.String())
	return nil
}

func (b *Base) checkModel() error {
	if b.model == nil {
		return model.ErrClusterStateUndefined
	}
	if b.model.Stale() {
		return fmt.Errorf("%w: model is stale", model.ErrClusterStateUndefined)
	}
	if b.model.Len() == 0 {
		return model.ErrClusterEmpty
	}
	return nil
}

// migrate relocates a workload in the working model and records the action.
// The model is left untouched when the relocation is refused.
func (b *Base) migrate(workloadID, src, dst string) error {
	if !b.model.Relocate(workloadID, src, dst) {
		return fmt.Errorf("%w: workload %s from %s to %s", model.ErrRelocationInfeasible, workloadID, src, dst)
	}
	b.solution.AddAction(NewMigration(workloadID, src, dst))
	b.migrations++
	b.logger.Info().
		Str("workload", workloadID).
		Str("source_node", src).
		Str("destination_node", dst).
		Msg("Planned live migration")
	return nil
}

// hostMetrics reads one meter for every node of the model. Nodes without
// data are left out with a warning.
func (b *Base) hostMetrics(ctx context.Context, meter string, window time.Duration) ([]HostMetric, error) {
	var hosts []HostMetric
	for _, id := range b.model.Nodes() {
		node, _ := b.model.LookupNode(id)
		value, ok, err := b.telemetry.Aggregate(ctx, id, meter, window, telemetry.Avg)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for %s: %w", meter, id, err)
		}
		if !ok {
			b.logger.Warn().Str("node", id).Str("meter", meter).Msg("No data for host, skipping")
			continue
		}
		b.logger.Debug().Str("node", id).Str("meter", meter).Float64("value", value).Msg("Host metric")
		hosts = append(hosts, HostMetric{Node: node, Value: value})
	}
	return hosts, nil
}

// seconds converts a numeric period parameter to a duration
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

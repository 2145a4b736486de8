/*
Package strategy implements the placement decision engine: a registry of
pluggable strategies, the executor that drives them, and the built-in
algorithms.

# Architecture

A strategy run works on a private deep copy of the published cluster model.
Every decision is applied to that copy immediately, so later decisions in
the same run see the effect of earlier ones:

	┌──────────────────── Executor.Execute ────────────────────┐
	│                                                          │
	│  Registry.New(name, Deps, Parameters)                    │
	│        │    Resolve: defaults + type checks              │
	│        ▼                                                 │
	│  PreExecute ──► DoExecute ──► PostExecute                │
	│  model check    read telemetry,  attach model,           │
	│  (stale/empty)  Relocate + add   set indicators,         │
	│                 actions          freeze Solution         │
	│                                                          │
	│  span "strategy.execute" + one child span per phase      │
	│  rebalancer_strategy_duration_seconds{strategy}          │
	│  rebalancer_actions_planned_total{strategy,action}       │
	└──────────────────────────────────────────────────────────┘

# Built-in strategies

	┌─────────────────────────┬──────────────────────┬──────────────────────────────────┐
	│ Name                    │ Goal                 │ Signal                           │
	├─────────────────────────┼──────────────────────┼──────────────────────────────────┤
	│ workload_balance        │ workload_balancing   │ instance cpu_util × cores        │
	│ workload_stabilization  │ workload_balancing   │ host cpu + memory std deviation  │
	│ outlet_temperature      │ thermal_optimization │ host outlet temperature          │
	│ uniform_airflow         │ airflow_optimization │ host airflow, inlet temp, power  │
	└─────────────────────────┴──────────────────────┴──────────────────────────────────┘

The threshold strategies share one shape: read a host metric, split hosts
into over (value ≥ threshold) and under, walk sources from the most severe,
pick a donor workload, and place it on the least loaded host that fits.
Hosts without data are skipped with a warning, never treated as zero.

# Termination

Nothing over threshold, no donor, or no feasible destination ends the run
with an empty Solution and a nil error. A nil or stale model fails
PreExecute with model.ErrClusterStateUndefined, a model without nodes with
model.ErrClusterEmpty.

# Usage

	registry := strategy.NewDefaultRegistry()
	executor := strategy.NewExecutor(registry, aggregator)

	solution, err := executor.Execute(ctx, "workload_balance",
		strategy.Parameters{"threshold": 80.0}, snapshot)
	if err != nil {
		return err
	}
	for _, a := range solution.Actions() {
		fmt.Println(a.Type, a.ResourceID, a.Parameters["destination_node"])
	}
*/
package strategy

// Package telemetry reads aggregated host and instance metrics for the
// placement strategies.
//
// Aggregator.Aggregate returns ok=false when the backend simply has no data
// for a series; callers skip the entity instead of failing. The Prometheus
// implementation issues <agg>_over_time range queries against series labelled
// with resource_id. Static serves a fixed YAML table for offline simulation.
package telemetry

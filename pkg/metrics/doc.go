/*
Package metrics provides Prometheus metrics and the component health
registry for the rebalancer.

Every metric is a package-level collector registered with the default
Prometheus registry at init, so any package can record into it without
wiring. The HTTP API exposes the registry on /metrics and the health
registry on /health, /ready and /live.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                           │
	│  scheduler ──► CollectionDuration, CollectionFailures     │
	│  notification ──► NotificationsTotal                      │
	│  strategy.Executor ──► StrategyDuration, ActionsPlanned   │
	│  audit.Dispatcher ──► AuditsTotal, AuditQueueDepth        │
	│  reconciler ──► Reconciliation{Duration,CyclesTotal}      │
	│  api middleware ──► APIRequests{Total,Duration}           │
	│  health.Monitor ──► BackendProbesTotal                    │
	│                                                           │
	│  Collector (15s) ──► reads every model Slot ──►           │
	│        NodesTotal, WorkloadsTotal, ModelStale,            │
	│        ModelGeneration                                    │
	│                                                           │
	│                  promhttp.Handler ──► /metrics            │
	└───────────────────────────────────────────────────────────┘

# Metrics

Model:

	rebalancer_nodes_total{collector, state}          gauge
	rebalancer_workloads_total{collector, state}      gauge
	rebalancer_model_stale{collector}                 gauge (1 = stale)
	rebalancer_model_generation{collector}            gauge
	rebalancer_collection_duration_seconds{collector} histogram
	rebalancer_collection_failures_total{collector, reason} counter

Synchronization and planning:

	rebalancer_notifications_total{endpoint, result}  counter
	rebalancer_strategy_duration_seconds{strategy}    histogram
	rebalancer_actions_planned_total{strategy, action} counter
	rebalancer_audits_total{state}                    counter
	rebalancer_audit_queue_depth                      gauge
	rebalancer_reconciliation_duration_seconds        histogram
	rebalancer_reconciliation_cycles_total            counter

Serving:

	rebalancer_api_requests_total{route, status}      counter
	rebalancer_api_request_duration_seconds{route}    histogram
	rebalancer_backend_probes_total{backend, result}  counter

A stale model keeps its last node and workload counts; alert on
rebalancer_model_stale rather than on the counts dropping.

# Timing

	timer := metrics.NewTimer()
	// ... work ...
	timer.ObserveDurationVec(metrics.StrategyDuration, name)

# Component Health

Components register themselves with RegisterComponent and report changes
with UpdateComponent. /health lists every component; /ready answers 503
while any critical component is unhealthy. The store and the API are
critical by default, and the manager adds each collector with
SetCritical.

	metrics.RegisterComponent("store", true, "")
	metrics.UpdateComponent("collector.compute", false, "rebuild timed out")
*/
package metrics

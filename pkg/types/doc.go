/*
Package types defines the records the decision engine persists and serves
over its API.

# Core Types

Catalog:
  - Goal: an optimization objective, e.g. workload_balancing
  - StrategyRecord: a registered strategy, its goal and parameter schema

Audits:
  - Audit: a request to run a strategy against the cluster model
  - AuditType: ONESHOT runs once, CONTINUOUS re-runs every Interval
  - AuditState: PENDING → ONGOING → SUCCEEDED | FAILED

Results:
  - ActionPlan: the ordered actions and efficacy indicators of one run,
    created in state RECOMMENDED
  - Action: one step, e.g. a live migration of a workload between hosts

# Lifecycle

	            RunAudit
	PENDING ──────────────► ONGOING ──┬──► SUCCEEDED  (ONESHOT, plan stored)
	                           ▲      ├──► FAILED     (StateReason set)
	                           │      └──► ONGOING    (CONTINUOUS, plan stored)
	                           └── reconciler re-triggers after Interval

Records are never removed. Deleting one sets DeletedAt, and the store hides
it from reads from then on.
*/
package types

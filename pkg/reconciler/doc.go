/*
Package reconciler keeps continuous audits running.

Every interval (10 seconds by default) the reconciler lists the stored
audits and queues those that are due on the audit dispatcher:

	┌────────────────────────────────────────────┐
	│            Reconciliation Loop             │
	│             (every interval)               │
	└─────────────────────┬──────────────────────┘
	                      │
	                      ▼
	                 ListAudits
	                      │
	                      ▼
	        CONTINUOUS, PENDING or ONGOING,
	        never run or LastRunAt + Interval <= now
	                      │
	                      ▼
	               Dispatcher.Trigger
	                      │
	          ┌───────────┴───────────┐
	          ▼                       ▼
	      queued              ErrQueueFull: retried
	                           on the next cycle

A continuous audit that failed leaves the FAILED state only when it is
re-created, so a broken strategy or parameter set is not retried forever.
The dispatcher coalesces triggers for an audit that is already queued, so
a slow run is never queued twice.

# Metrics

	rebalancer_reconciliation_duration_seconds   histogram
	rebalancer_reconciliation_cycles_total       counter

# Usage

	r := reconciler.NewReconciler(store, dispatcher, 10*time.Second)
	r.Start()
	defer r.Stop()
*/
package reconciler

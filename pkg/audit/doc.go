/*
Package audit runs audits against the published cluster model and turns
strategy solutions into persisted action plans.

A run is synchronous (RunAudit) or queued on a bounded worker pool
(Trigger). Trigger never waits for the run:

	Trigger(id) ──► queue (QueueSize) ──► worker ──► RunAudit(id)
	                  │ full
	                  ├─ reject: ErrQueueFull
	                  └─ block:  wait for a slot or Stop

A run moves the audit to ONGOING, snapshots the compute collector's model
and executes the audit's strategy (or the first strategy of its goal) on the
snapshot:

	ok    ──► ActionPlan RECOMMENDED, previous plan SUPERSEDED
	          ONESHOT ──► SUCCEEDED, CONTINUOUS stays ONGOING
	error ──► FAILED with state_reason, no plan

An audit queued or running is not queued twice. Stop lets running audits
finish; queued ones are dropped and keep their stored state.
*/
package audit

/*
Package collector builds cluster models and holds the published copy.

A Collector performs a full rebuild from its source of truth. Each
registered collector gets a Slot, the single owner of the model that
strategies and the notification synchronizer see:

	            ┌──────────────── Slot ────────────────┐
	 scheduler ─┤ Publish / MarkStale / BeginSync       │
	 notifier  ─┤ Update(fn)          mutex ──► model   │
	 audits    ─┤ Latest() ──► DeepCopy                 │
	            └───────────────────────────────────────┘

Slot states move Uninitialized → Syncing → Fresh or Stale. A stale model is
kept (the synchronizer keeps patching it) but strategies refuse it until the
next successful rebuild publishes a fresh one.

The compute collector keys nodes by hostname, records node and instance
capacities, and maps each instance to its host. Instances whose host is
unknown stay in the model unplaced.
*/
package collector

/*
Package scheduler runs the periodic full rebuild of every registered
collector.

Each collector gets its own loop: one rebuild immediately at Start, then one
per Period tick.

	tick ──► BeginSync ──► Execute(ctx, timeout = period) ─┬─► Publish       (fresh)
	                                                        ├─► MarkStale(err) (error)
	                                                        └─► MarkStale(ErrCollectionTimeout)

The fetch runs on its own goroutine. When the deadline passes the scheduler
stops waiting, marks the model stale and discards whatever the fetch returns
later. The fetch sees a cancelled context but is not otherwise interrupted.

Runs of the same collector never overlap: SyncNow and the periodic loop
share a per-collector lock. Stop cancels in-flight fetches without marking
the model stale.

Every run updates rebalancer_collection_duration_seconds; failures increment
rebalancer_collection_failures_total{reason="timeout"|"error"} and flip the
collector.<name> health component.
*/
package scheduler

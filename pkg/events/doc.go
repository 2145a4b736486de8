/*
Package events carries compute-service lifecycle notifications from their
sources (the HTTP webhook, the etcd inventory watcher) to the incremental
synchronizer.

	 webhook ──┐
	           ├──► Broker.eventCh (100) ──► broadcast ──► Subscriber (50) ──► notification.Dispatcher
	 etcd watch┘

Notifications are fanned out without blocking the broadcast loop. A
subscriber that falls behind loses messages; the periodic rebuild repairs
whatever the synchronizer missed, so delivery is at most once.

A Notification keeps its payload as raw JSON. Decoding is left to the
endpoint that claims it, which lets one envelope type serve both the
versioned and the legacy payload shapes.
*/
package events

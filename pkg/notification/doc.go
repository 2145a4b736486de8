/*
Package notification keeps the published cluster model current between full
rebuilds by applying compute-service lifecycle notifications.

Each Endpoint declares a Filter (publisher id pattern, exact event type and
an optional payload predicate) and an Apply method. The Dispatcher offers
every notification to every endpoint; one notification may be applied by
several endpoints.

	ServiceUpdated            service.update
	InstanceCreated           instance.update  (building -> active)
	InstanceUpdated           instance.update  (anything else)
	InstanceDeletedEnd        instance.delete.end
	LegacyInstanceUpdated     compute.instance.update
	LegacyInstanceCreatedEnd  compute.instance.create.end
	LegacyInstanceDeletedEnd  compute.instance.delete.end
	LegacyLiveMigratedEnd     compute.instance.live_migration.post.dest.end

Rules applied by every instance endpoint:

  - Unknown workloads are created. Unknown nodes are created from compute
    facts, fetched before the slot lock is taken.
  - Declared fields (state, hostname, display name, cpu, memory and disk
    ledgers) are overwritten, so replaying a notification is harmless.
  - A workload reported on a new host is unmapped from its old host first.
    When the new host cannot be resolved the workload stays unmapped.
  - Deleting an unknown workload does nothing.

Malformed payloads are logged and dropped. Nothing an endpoint returns ever
reaches the publisher; results are counted in
rebalancer_notifications_total{endpoint,result}.
*/
package notification

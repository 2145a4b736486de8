// Package compute is the read side of the compute service: the facts about
// hypervisors and instances used to build and patch the cluster model.
//
// Two inventories implement Facts. StaticInventory reads a YAML document and
// backs the simulate command and tests. EtcdInventory reads JSON values kept
// under /rebalancer/nodes/<hostname> and /rebalancer/instances/<uuid> and can
// watch the instance prefix, republishing changes as legacy compute
// notifications on an events.Broker.
//
// The payload types in payload.go mirror the notification bodies emitted by
// the compute service and are shared with package notification.
package compute

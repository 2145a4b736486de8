/*
Package manager is the composition root of a rebalancer server.

NewManager turns a validated config.Config into a running set of
components; Start launches them and Stop tears them down in reverse order,
aggregating every shutdown error with multierr.

# Architecture

	                         ┌──────────────┐
	    compute service ───► │  api.Server  │ ◄─── rebalancer CLI
	     (webhook)           └──┬────────┬──┘
	                            │        │ Trigger
	              Publish       │        ▼
	  ┌──────────────┐   ┌──────▼─────┐ ┌──────────────────┐   ┌────────────┐
	  │ etcd Watch   ├──►│   events   │ │ audit.Dispatcher │◄──┤ reconciler │
	  │ (etcd driver)│   │   Broker   │ │  worker pool     │   └────────────┘
	  └──────────────┘   └──────┬─────┘ └───┬──────────┬───┘
	                            │           │ Latest   │ Execute
	                            ▼           ▼          ▼
	              notification.Dispatcher  Slot    strategy.Executor
	                            │           ▲          │
	                            └─ patch ───┤          ▼
	                                        │    telemetry.Aggregator
	                     scheduler ─ Publish┘
	                   (compute.Facts)

# Components

	store          storage.BoltStore under data_dir (rebalancer.db)
	facts          compute.StaticInventory or compute.EtcdInventory
	telemetry      telemetry.Prometheus or telemetry.Static
	collectors     one compute collector with its model Slot
	scheduler      periodic rebuilds, staleness on failure or timeout
	broker         in-process notification fan-out
	notifications  dispatcher patching the Slot from the broker
	audits         audit.Dispatcher (bounded worker pool)
	reconciler     re-triggers due continuous audits
	gauges         metrics.Collector exporting model gauges
	probes         health.Monitor probing Prometheus and etcd endpoints
	api            HTTP API, probes and /metrics

# Startup

	1. catalog.Sync mirrors the strategy registry into the store
	2. broker, notification dispatcher, etcd watch (etcd driver only)
	3. scheduler (first rebuild runs immediately), audit workers,
	   reconciler, gauge collector, backend probes
	4. HTTP API in the background; serve failures arrive on Errors()

Readiness requires the store, the API and the compute collector
(collector.compute) to be healthy.

# Shutdown

	API ─► reconciler ─► audit workers ─► scheduler ─► gauges ─► probes
	    ─► cancel context (notification loop, etcd watch) ─► broker
	    ─► close inventory ─► close store
*/
package manager

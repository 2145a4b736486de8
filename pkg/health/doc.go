/*
Package health probes the external backends a rebalancer server depends on
and publishes their state to the component registry in pkg/metrics.

The server never fails because a backend is down: a dead telemetry endpoint
only makes strategies see missing data, and a dead etcd only makes the
scheduler mark the model stale. The monitor makes those conditions visible
on /health before an operator has to read audit failures.

# Checkers

	HTTPChecker   GET on a URL, healthy for a status in [min, max]
	              (Prometheus: <prometheus_url>/-/healthy)
	TCPChecker    dial and close (each etcd endpoint)

# Monitor

	Add(name, checker) ─► metrics.RegisterComponent(name, healthy)
	        │
	        ▼
	   every Interval
	        │
	   Check(ctx with Timeout) ─► Status.Update ─► metrics.UpdateComponent
	                                   │
	                   Retries consecutive failures flip Healthy,
	                   one success flips it back

Backend components are not critical by default, so they show up in the
/health and /ready details without failing readiness.

# Usage

	mon := health.NewMonitor(health.DefaultConfig())
	mon.Add("telemetry.prometheus", health.NewHTTPChecker(url+"/-/healthy"))
	mon.Start()
	defer mon.Stop()
*/
package health

/*
Package api provides the rebalancer HTTP API.

The API is the outer surface of the decision engine: operators create and
trigger audits, read the resulting action plans and browse the strategy
catalog. The compute service (or a relay in front of it) posts lifecycle
notifications to the webhook, which feeds the incremental synchronizer.

# Architecture

	┌──────────────────── CLI / HTTP clients ────────────────────┐
	│        rebalancer audit ... / apply / strategy list        │
	└─────────────────────────────┬──────────────────────────────┘
	                              │ JSON over HTTP
	┌─────────────────────────────▼──────────────────────────────┐
	│                        api.Server                          │
	│   instrument(route) ─► handler ─► writeJSON / writeError   │
	└───────┬──────────────────┬──────────────────┬──────────────┘
	        │                  │                  │
	        ▼                  ▼                  ▼
	  storage.Store     audit.Dispatcher    events.Broker
	 (audits, plans)      (Trigger)       (notifications)

# Routes

	GET    /health                       component health (pkg/metrics)
	GET    /ready                        readiness, 503 until store and api are up
	GET    /live                         liveness
	GET    /metrics                      Prometheus exposition

	POST   /v1/audits                    create an audit (201)
	GET    /v1/audits                    list audits
	GET    /v1/audits/{id}               show an audit
	DELETE /v1/audits/{id}               soft delete (204)
	POST   /v1/audits/{id}/trigger       queue a run (202, returns before it starts)
	POST   /v1/audits/{id}/cancel        mark CANCELLED
	GET    /v1/audits/{id}/actionplan    latest action plan of the audit
	GET    /v1/goals                     goals synced into the catalog
	GET    /v1/strategies[?goal=NAME]    registered strategies and parameter schemas
	POST   /v1/notifications             publish a compute notification (202)

Audit creation validates the request against the strategy registry: the
strategy must exist and serve the goal, parameters must match its schema,
and continuous audits need a positive interval.

# Errors

Failures answer {"error": "..."} with a status derived from the error kind:

	errdefs.ErrInvalidArgument       400
	errdefs.ErrNotFound              404
	errdefs.ErrAlreadyExists         409
	errdefs.ErrFailedPrecondition    409
	audit.ErrQueueFull, ErrStopped   503
	anything else                    500

# Metrics

Every route records rebalancer_api_requests_total{route,status} and
rebalancer_api_request_duration_seconds{route}, labelled by the route
pattern rather than the request path.
*/
package api

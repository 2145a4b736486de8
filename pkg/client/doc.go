/*
Package client provides a Go client library for the rebalancer HTTP API.

The client wraps the routes served by pkg/api with one method per
operation. It is what the rebalancer CLI uses for every command that talks
to a running server.

# Architecture

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                            │
	│  c, err := client.NewClient("127.0.0.1:9322")              │
	│  a, err := c.CreateAudit(api.CreateAuditRequest{...})      │
	│  _, err = c.TriggerAudit(a.ID)                             │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│   do(method, path, body, out)                              │
	│     JSON encode ─► http.Client (10s timeout) ─► decode     │
	│     status >= 400 ─► errdefs kind                          │
	└──────────────────┬─────────────────────────────────────────┘
	                   │ HTTP
	┌──────────────────▼─────────────────────────────────────────┐
	│                      rebalancer serve                      │
	└────────────────────────────────────────────────────────────┘

# Errors

Failed requests return the server's message wrapped with the errdefs kind
matching the status code, so callers test errors the same way on both sides
of the wire:

	plan, err := c.GetActionPlan(id)
	if errdefs.IsNotFound(err) {
		// the audit has not produced a plan yet
	}

	400 ─► errdefs.ErrInvalidArgument
	404 ─► errdefs.ErrNotFound
	409 ─► errdefs.ErrConflict
	503 ─► errdefs.ErrUnavailable (audit queue full)

# Triggering

TriggerAudit returns as soon as the server queued the run. Poll GetAudit
until the state leaves ONGOING, then read the plan with GetActionPlan.
*/
package client

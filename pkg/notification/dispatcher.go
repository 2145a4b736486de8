package notification

import (
	"context"
	"errors"

	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/metrics"
	"github.com/cuemby/rebalancer/pkg/model"
)

// Results recorded in rebalancer_notifications_total
const (
	ResultApplied = "applied"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Dispatcher routes notifications to the endpoints whose filter matches.
// Endpoint errors are logged and counted, never returned.
type Dispatcher struct {
	endpoints []Endpoint
}

// NewDispatcher creates a dispatcher over a fixed endpoint list
func NewDispatcher(endpoints ...Endpoint) *Dispatcher {
	return &Dispatcher{endpoints: endpoints}
}

// Endpoints returns the routed endpoints
func (d *Dispatcher) Endpoints() []Endpoint {
	return d.endpoints
}

// Handle applies n to every matching endpoint and returns how many applied
// it successfully
func (d *Dispatcher) Handle(ctx context.Context, n *events.Notification) int {
	applied := 0
	for _, ep := range d.endpoints {
		if !ep.Filter().Match(n) {
			continue
		}

		logger := log.WithEndpoint(ep.Name())
		logger.Info().
			Str("event_type", n.EventType).
			Str("publisher_id", n.PublisherID).
			Interface("metadata", n.Metadata).
			Msg("Notification received")

		err := ep.Apply(ctx, n)
		result := ResultApplied
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrMalformedPayload):
			result = ResultDropped
			logger.Warn().Err(err).Str("notification_id", n.ID).Msg("Dropping malformed notification")
		case errors.Is(err, model.ErrClusterStateUndefined):
			result = ResultSkipped
			logger.Debug().Str("notification_id", n.ID).Msg("No model published yet, notification skipped")
		default:
			result = ResultError
			logger.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to apply notification")
		}
		metrics.NotificationsTotal.WithLabelValues(ep.Name(), result).Inc()
	}
	return applied
}

// Run consumes notifications from the broker until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context, broker *events.Broker) {
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for {
		select {
		case n, ok := <-sub:
			if !ok {
				return
			}
			d.Handle(ctx, n)
		case <-ctx.Done():
			return
		}
	}
}

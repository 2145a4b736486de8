package model

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrClusterStateUndefined is returned when no model was ever built or the
	// published model is stale.
	ErrClusterStateUndefined = errors.New("cluster state is not defined")

	// ErrClusterEmpty is returned when a model was built but has no nodes
	ErrClusterEmpty = errors.New("cluster is empty")

	// ErrEntityNotFound wraps errdefs.ErrNotFound so callers can use either
	// errors.Is(err, ErrEntityNotFound) or errdefs.IsNotFound(err).
	ErrEntityNotFound = fmt.Errorf("entity %w", errdefs.ErrNotFound)

	// ErrCollectionTimeout is returned when a rebuild exceeded its deadline
	ErrCollectionTimeout = errors.New("cluster data model collection timed out")

	// ErrMetricUnavailable is returned when telemetry has no data for a
	// required metric
	ErrMetricUnavailable = errors.New("metric unavailable")

	// ErrRelocationInfeasible is returned when a single placement attempt
	// fails its capacity or precondition checks
	ErrRelocationInfeasible = errors.New("relocation infeasible")
)

// NodeNotFound returns an ErrEntityNotFound error for a node id
func NodeNotFound(id string) error {
	return fmt.Errorf("compute node %s: %w", id, ErrEntityNotFound)
}

// WorkloadNotFound returns an ErrEntityNotFound error for a workload id
func WorkloadNotFound(id string) error {
	return fmt.Errorf("workload %s: %w", id, ErrEntityNotFound)
}

package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/rebalancer/pkg/compute"
	"github.com/cuemby/rebalancer/pkg/log"
	"github.com/cuemby/rebalancer/pkg/model"
)

// DefaultName is the name of the compute collector
const DefaultName = "compute"

// DefaultPeriod is used when a collector is configured without a period
const DefaultPeriod = time.Hour

// Collector rebuilds a full cluster model from its source of truth
type Collector interface {
	Name() string
	Period() time.Duration
	Execute(ctx context.Context) (*model.ClusterModel, error)
}

// ComputeCollector builds the model from compute-service facts
type ComputeCollector struct {
	facts  compute.Facts
	period time.Duration
}

// NewComputeCollector creates the compute collector
func NewComputeCollector(facts compute.Facts, period time.Duration) *ComputeCollector {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &ComputeCollector{facts: facts, period: period}
}

// Name implements Collector
func (c *ComputeCollector) Name() string {
	return DefaultName
}

// Period implements Collector
func (c *ComputeCollector) Period() time.Duration {
	return c.period
}

// Facts returns the compute facts the collector reads
func (c *ComputeCollector) Facts() compute.Facts {
	return c.facts
}

// Execute implements Collector
func (c *ComputeCollector) Execute(ctx context.Context) (*model.ClusterModel, error) {
	nodes, err := c.facts.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list compute nodes: %w", err)
	}
	instances, err := c.facts.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	m := model.New()
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n.Record(m)
	}

	unplaced := 0
	for _, in := range instances {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in.Record(m)
		if in.Host == "" {
			unplaced++
			continue
		}
		if err := m.Map(in.UUID, in.Host); err != nil {
			unplaced++
			log.Logger.Debug().
				Str("workload", in.UUID).
				Str("host", in.Host).
				Msg("Instance host not in model, leaving unplaced")
		}
	}

	log.Logger.Debug().
		Int("nodes", m.Len()).
		Int("workloads", len(instances)).
		Int("unplaced", unplaced).
		Msg("Compute model rebuilt")
	return m, nil
}

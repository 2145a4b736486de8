package telemetry

import (
	"context"
	"fmt"
	"time"
)

// Aggregation is the reduction applied over a telemetry window
type Aggregation string

const (
	Avg   Aggregation = "avg"
	Min   Aggregation = "min"
	Max   Aggregation = "max"
	Sum   Aggregation = "sum"
	Count Aggregation = "count"
)

// Valid reports whether a is a known aggregation
func (a Aggregation) Valid() bool {
	switch a {
	case Avg, Min, Max, Sum, Count:
		return true
	}
	return false
}

// Aggregator answers "what was metric M for resource R over the last window".
// ok is false when the backend has no data, which is not an error.
type Aggregator interface {
	Aggregate(ctx context.Context, resourceID, metric string, window time.Duration, agg Aggregation) (value float64, ok bool, err error)
}

// Well-known meters consumed by the built-in strategies
const (
	MeterCPUUtil        = "cpu_util"
	MeterMemoryResident = "memory.resident"
	MeterHostCPUUtil    = "hardware.cpu.util"
	MeterHostMemoryUsed = "hardware.memory.used"
	MeterOutletTemp     = "hardware.ipmi.node.outlet_temperature"
	MeterAirflow        = "hardware.ipmi.node.airflow"
	MeterInletTemp      = "hardware.ipmi.node.temperature"
	MeterPower          = "hardware.ipmi.node.power"
)

func validate(agg Aggregation, window time.Duration) error {
	if !agg.Valid() {
		return fmt.Errorf("unknown aggregation %q", agg)
	}
	if window <= 0 {
		return fmt.Errorf("window must be positive, got %s", window)
	}
	return nil
}

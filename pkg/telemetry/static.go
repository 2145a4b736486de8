package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Static serves fixed values keyed by resource and metric. The window and
// aggregation are validated and otherwise ignored.
type Static struct {
	mu     sync.RWMutex
	values map[string]map[string]float64
}

// NewStatic creates an empty table
func NewStatic() *Static {
	return &Static{values: make(map[string]map[string]float64)}
}

// LoadStatic reads a YAML table of the form
//
//	host-1:
//	  hardware.cpu.util: 42
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry file: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic decodes a YAML table
func ParseStatic(data []byte) (*Static, error) {
	var values map[string]map[string]float64
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse telemetry file: %w", err)
	}
	s := NewStatic()
	for id, metrics := range values {
		for metric, v := range metrics {
			s.Set(id, metric, v)
		}
	}
	return s, nil
}

// Set records a value
func (s *Static) Set(resourceID, metric string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.values[resourceID]
	if !ok {
		m = make(map[string]float64)
		s.values[resourceID] = m
	}
	m[metric] = value
}

// Delete forgets a value
func (s *Static) Delete(resourceID, metric string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[resourceID], metric)
}

// Aggregate implements Aggregator
func (s *Static) Aggregate(ctx context.Context, resourceID, metric string, window time.Duration, agg Aggregation) (float64, bool, error) {
	if err := validate(agg, window); err != nil {
		return 0, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[resourceID][metric]
	return v, ok, nil
}

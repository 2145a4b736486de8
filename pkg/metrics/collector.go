package metrics

import (
	"time"

	"github.com/cuemby/rebalancer/pkg/collector"
	"github.com/cuemby/rebalancer/pkg/model"
)

// Collector periodically publishes gauges describing every collector's model
type Collector struct {
	registry *collector.Registry
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(registry *collector.Registry) *Collector {
	return &Collector{
		registry: registry,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.doneCh)
		defer ticker.Stop()

		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector and waits for its loop to exit
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// Collect refreshes the gauges once
func (c *Collector) Collect() {
	for _, e := range c.registry.All() {
		name := e.Collector.Name()
		ModelGeneration.WithLabelValues(name).Set(float64(e.Slot.Generation()))

		e.Slot.View(func(m *model.ClusterModel) {
			if m == nil {
				return
			}
			c.collectModel(name, m)
		})
	}
}

func (c *Collector) collectModel(name string, m *model.ClusterModel) {
	if m.Stale() {
		ModelStale.WithLabelValues(name).Set(1)
	} else {
		ModelStale.WithLabelValues(name).Set(0)
	}

	nodeCounts := map[string]int{
		string(model.NodeStateOnline):    0,
		string(model.NodeStateOffline):   0,
		string(model.NodeStatusDisabled): 0,
	}
	for _, id := range m.Nodes() {
		n, _ := m.LookupNode(id)
		nodeCounts[string(n.State)]++
		if n.Status == model.NodeStatusDisabled {
			nodeCounts[string(model.NodeStatusDisabled)]++
		}
	}
	for state, count := range nodeCounts {
		NodesTotal.WithLabelValues(name, state).Set(float64(count))
	}

	workloadCounts := make(map[string]int)
	for _, id := range m.Workloads() {
		w, _ := m.LookupWorkload(id)
		workloadCounts[string(w.State)]++
	}
	WorkloadsTotal.DeletePartialMatch(map[string]string{"collector": name})
	for state, count := range workloadCounts {
		WorkloadsTotal.WithLabelValues(name, state).Set(float64(count))
	}
}

package compute

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/cuemby/rebalancer/pkg/model"
	"gopkg.in/yaml.v3"
)

// Inventory is the YAML document read by StaticInventory
type Inventory struct {
	Nodes     []*NodeFacts     `yaml:"nodes"`
	Instances []*InstanceFacts `yaml:"instances"`
}

// StaticInventory serves compute facts from a YAML file or an in-memory
// inventory. It is used by the simulate command and by tests.
type StaticInventory struct {
	mu   sync.RWMutex
	path string
	inv  Inventory
}

// NewStaticInventory wraps an in-memory inventory
func NewStaticInventory(inv Inventory) *StaticInventory {
	return &StaticInventory{inv: inv}
}

// LoadStaticInventory reads an inventory file
func LoadStaticInventory(path string) (*StaticInventory, error) {
	s := &StaticInventory{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseInventory decodes an inventory document
func ParseInventory(data []byte) (Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return Inventory{}, fmt.Errorf("failed to parse inventory: %w", err)
	}
	for i, n := range inv.Nodes {
		if n == nil || n.NodeID() == "" {
			return Inventory{}, fmt.Errorf("node %d: hostname or id is required", i)
		}
	}
	for i, in := range inv.Instances {
		if in == nil || in.UUID == "" {
			return Inventory{}, fmt.Errorf("instance %d: uuid is required", i)
		}
	}
	return inv, nil
}

// Reload re-reads the backing file. In-memory inventories are left as is.
func (s *StaticInventory) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read inventory: %w", err)
	}
	inv, err := ParseInventory(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.inv = inv
	s.mu.Unlock()
	return nil
}

// SetInstance inserts or replaces an instance
func (s *StaticInventory) SetInstance(in *InstanceFacts) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.inv.Instances {
		if existing.UUID == in.UUID {
			s.inv.Instances[i] = in
			return
		}
	}
	s.inv.Instances = append(s.inv.Instances, in)
}

// GetNodeByHostname implements Facts
func (s *StaticInventory) GetNodeByHostname(ctx context.Context, hostname string) (*NodeFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.inv.Nodes {
		if n.Hostname == hostname || n.NodeID() == hostname {
			c := *n
			return &c, nil
		}
	}
	return nil, model.NodeNotFound(hostname)
}

// ListNodes implements Facts
func (s *StaticInventory) ListNodes(ctx context.Context) ([]*NodeFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*NodeFacts, 0, len(s.inv.Nodes))
	for _, n := range s.inv.Nodes {
		c := *n
		nodes = append(nodes, &c)
	}
	return nodes, nil
}

// ListInstances implements Facts
func (s *StaticInventory) ListInstances(ctx context.Context) ([]*InstanceFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instances := make([]*InstanceFacts, 0, len(s.inv.Instances))
	for _, in := range s.inv.Instances {
		c := *in
		instances = append(instances, &c)
	}
	return instances, nil
}

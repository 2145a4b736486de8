package model

// ResourceType identifies a capacity ledger
type ResourceType string

const (
	ResourceCPUCores     ResourceType = "cpu_cores"
	ResourceMemory       ResourceType = "memory"
	ResourceDisk         ResourceType = "disk"
	ResourceDiskCapacity ResourceType = "disk_capacity"
)

// ResourceTypes lists every ledger a model carries, in a stable order
var ResourceTypes = []ResourceType{
	ResourceCPUCores,
	ResourceMemory,
	ResourceDisk,
	ResourceDiskCapacity,
}

// ResourceLedger maps an entity id (node or workload) to a capacity value.
// A missing entry means the capacity is unknown, not zero.
type ResourceLedger struct {
	Type    ResourceType
	entries map[string]float64
}

// NewResourceLedger creates an empty ledger
func NewResourceLedger(t ResourceType) *ResourceLedger {
	return &ResourceLedger{
		Type:    t,
		entries: make(map[string]float64),
	}
}

// Capacity returns the value recorded for an entity
func (r *ResourceLedger) Capacity(id string) (float64, bool) {
	v, ok := r.entries[id]
	return v, ok
}

// CapacityOrZero returns the recorded value, or 0 when unknown
func (r *ResourceLedger) CapacityOrZero(id string) float64 {
	return r.entries[id]
}

// SetCapacity records a value for an entity
func (r *ResourceLedger) SetCapacity(id string, value float64) {
	r.entries[id] = value
}

// Remove forgets the entry for an entity
func (r *ResourceLedger) Remove(id string) {
	delete(r.entries, id)
}

// Len returns the number of entities with a known capacity
func (r *ResourceLedger) Len() int {
	return len(r.entries)
}

// DeepCopy returns an independent copy of the ledger
func (r *ResourceLedger) DeepCopy() *ResourceLedger {
	c := &ResourceLedger{
		Type:    r.Type,
		entries: make(map[string]float64, len(r.entries)),
	}
	for k, v := range r.entries {
		c.entries[k] = v
	}
	return c
}

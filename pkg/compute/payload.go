package compute

// Wire shapes of compute-service notification payloads. Versioned payloads
// wrap their fields in a "nova_object.data" envelope; legacy payloads are flat.

// ObjectEnvelope is the versioned object wrapper
type ObjectEnvelope[T any] struct {
	Name      string `json:"nova_object.name,omitempty"`
	Namespace string `json:"nova_object.namespace,omitempty"`
	Version   string `json:"nova_object.version,omitempty"`
	Data      T      `json:"nova_object.data"`
}

// ServiceStatusData is carried by service.update
type ServiceStatusData struct {
	Host       string `json:"host"`
	Binary     string `json:"binary,omitempty"`
	Disabled   bool   `json:"disabled"`
	ForcedDown bool   `json:"forced_down"`
}

// FlavorData describes the size of an instance. A nil field was absent
// from the payload.
type FlavorData struct {
	MemoryMB *float64 `json:"memory_mb,omitempty"`
	VCPUs    *float64 `json:"vcpus,omitempty"`
	RootGB   *float64 `json:"root_gb,omitempty"`
}

// StateUpdateData describes a state transition
type StateUpdateData struct {
	OldState string `json:"old_state"`
	State    string `json:"state"`
}

// InstanceData is carried by instance.update and instance.delete.end
type InstanceData struct {
	UUID        string                           `json:"uuid"`
	State       string                           `json:"state"`
	HostName    string                           `json:"host_name"`
	Host        *string                          `json:"host"`
	DisplayName string                           `json:"display_name"`
	Flavor      ObjectEnvelope[FlavorData]       `json:"flavor"`
	StateUpdate *ObjectEnvelope[StateUpdateData] `json:"state_update,omitempty"`
}

// ServicePayload is the payload of service.update
type ServicePayload = ObjectEnvelope[ServiceStatusData]

// InstancePayload is the payload of versioned instance notifications
type InstancePayload = ObjectEnvelope[InstanceData]

// LegacyInstancePayload is the flat payload of compute.instance.* notifications
type LegacyInstancePayload struct {
	InstanceID  string   `json:"instance_id"`
	State       string   `json:"state"`
	Hostname    string   `json:"hostname"`
	Host        string   `json:"host"`
	DisplayName string   `json:"display_name"`
	MemoryMB    *float64 `json:"memory_mb,omitempty"`
	VCPUs       *float64 `json:"vcpus,omitempty"`
	RootGB      *float64 `json:"root_gb,omitempty"`
}

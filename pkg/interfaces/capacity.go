package interfaces

import "context"

// HostCapacity resolved compute resources of the host the coordinator
// runs on.
type HostCapacity struct {
	CPUCount    int    `json:"cpu_count"`
	MemoryBytes uint64 `json:"memory_bytes"`
}

// CapacityProvider resolves host capacity. The "auto" worker count and
// the default worker bounds derive from it.
type CapacityProvider interface {
	Capacity(ctx context.Context) (*HostCapacity, error)
}

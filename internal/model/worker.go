package model

import (
	"time"
)

// WorkerStatus worker process lifecycle status
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "STARTING" // Process spawned, waiting for online signal
	WorkerStatusOnline   WorkerStatus = "ONLINE"   // Online - registered and serving
	WorkerStatusDraining WorkerStatus = "DRAINING" // Draining - no new work accepted
	WorkerStatusStopping WorkerStatus = "STOPPING" // Graceful shutdown requested
	WorkerStatusDead     WorkerStatus = "DEAD"     // Process exited
)

func (s WorkerStatus) String() string {
	return string(s)
}

// HealthState probe-derived health classification
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
	HealthDead     HealthState = "dead"
)

func (h HealthState) String() string {
	return string(h)
}

// Routable reports whether a worker in this state may receive new work.
// Warning still routes; critical and dead do not.
func (h HealthState) Routable() bool {
	return h == HealthHealthy || h == HealthWarning
}

// Worker a single worker process owned by the coordinator registry
type Worker struct {
	ID            string       `json:"id"`
	PID           int          `json:"pid"`
	Status        WorkerStatus `json:"status"`
	Health        HealthState  `json:"health"`
	SpawnedAt     time.Time    `json:"spawned_at"`
	OnlineAt      *time.Time   `json:"online_at,omitempty"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Restarts      int          `json:"restarts"` // Times this slot was re-forked after unexpected exit
	Version       string       `json:"version,omitempty"`
}

// WorkerMetrics per-worker resource and request counters.
// Identity fields are owned by the registry; usage fields are refreshed
// from worker heartbeats and read by the balancer and the autoscaler.
type WorkerMetrics struct {
	WorkerID            string      `json:"worker_id"`
	PID                 int         `json:"pid"`
	CPUPercent          float64     `json:"cpu_percent"`
	MemoryPercent       float64     `json:"memory_percent"`
	MemoryBytes         uint64      `json:"memory_bytes"`
	ActiveRequests      int         `json:"active_requests"`
	QueuedRequests      int         `json:"queued_requests"`
	TotalRequests       uint64      `json:"total_requests"`
	ErrorCount          uint64      `json:"error_count"`
	AvgResponseTime     float64     `json:"avg_response_time"` // Milliseconds
	Health              HealthState `json:"health"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastSeen            time.Time   `json:"last_seen"`
}

// SpawnSpec explicit identity and wiring handed to a worker at spawn time.
// Serialized as JSON into the worker subcommand arguments, never inherited
// through the environment.
type SpawnSpec struct {
	WorkerID          string            `json:"worker_id"`
	ClusterID         string            `json:"cluster_id"`
	CoordinatorURL    string            `json:"coordinator_url"`
	AuthToken         string            `json:"auth_token"`
	HeartbeatInterval int               `json:"heartbeat_interval"` // Seconds
	Version           string            `json:"version,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
}

// HeartbeatPayload worker self-reported usage sample
type HeartbeatPayload struct {
	WorkerID        string  `json:"worker_id"`
	PID             int     `json:"pid"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryBytes     uint64  `json:"memory_bytes"`
	MemoryPercent   float64 `json:"memory_percent"`
	ActiveRequests  int     `json:"active_requests"`
	QueuedRequests  int     `json:"queued_requests"`
	TotalRequests   uint64  `json:"total_requests"`
	ErrorCount      uint64  `json:"error_count"`
	AvgResponseTime float64 `json:"avg_response_time"`
	Timestamp       int64   `json:"timestamp"`
}

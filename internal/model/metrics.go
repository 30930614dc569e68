package model

import (
	"time"
)

// HealthVerdict cluster-wide health classification derived from the
// healthy-worker fraction.
type HealthVerdict string

const (
	VerdictHealthy  HealthVerdict = "healthy"
	VerdictWarning  HealthVerdict = "warning"
	VerdictCritical HealthVerdict = "critical"
)

// ClusterMetrics point-in-time aggregate over all worker metrics.
// Recomputed each collection cycle, never mutated in place.
type ClusterMetrics struct {
	ActiveWorkers    int             `json:"active_workers"`
	TotalWorkers     int             `json:"total_workers"`
	HealthyWorkers   int             `json:"healthy_workers"`
	TotalRequests    uint64          `json:"total_requests"`
	QueuedRequests   int             `json:"queued_requests"`
	TotalErrors      uint64          `json:"total_errors"`
	ErrorRate        float64         `json:"error_rate"` // Errors / total requests, 0..1
	AvgCPUPercent    float64         `json:"avg_cpu_percent"`
	AvgMemoryPercent float64         `json:"avg_memory_percent"`
	TotalMemoryBytes uint64          `json:"total_memory_bytes"`
	AvgResponseTime  float64         `json:"avg_response_time"` // Milliseconds
	Health           HealthVerdict   `json:"health"`
	Workers          []WorkerMetrics `json:"workers,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// AggregatedMetrics flattened view consumed by the scaling decision engine
type AggregatedMetrics struct {
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryPercent   float64   `json:"memory_percent"`
	AvgResponseTime float64   `json:"avg_response_time"`
	QueueLength     int       `json:"queue_length"`
	ErrorRate       float64   `json:"error_rate"`
	IdleSeconds     float64   `json:"idle_seconds"` // Time since the last dispatched request
	ActiveWorkers   int       `json:"active_workers"`
	Timestamp       time.Time `json:"timestamp"`
}

package model

import (
	"encoding/json"
	"time"
)

// TaskStatus dispatched work unit status
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"    // Queued, not yet routed
	TaskStatusDispatched TaskStatus = "DISPATCHED" // Routed to a worker, awaiting result
	TaskStatusCompleted  TaskStatus = "COMPLETED"  // Worker reported success
	TaskStatusFailed     TaskStatus = "FAILED"     // Worker reported an error or delivery failed
)

// Task unit of work routed through the balancer to one worker
type Task struct {
	ID           string                 `json:"id"`
	Input        map[string]interface{} `json:"input"`
	Status       TaskStatus             `json:"status"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Error        string                 `json:"error,omitempty"`
	WorkerID     string                 `json:"worker_id,omitempty"`
	AffinityKey  string                 `json:"affinity_key,omitempty"` // Session affinity value when the balancer runs ip-hash
	ClientIP     string                 `json:"client_ip,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	DispatchedAt *time.Time             `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	DurationMs   float64                `json:"duration_ms,omitempty"`
}

// SubmitRequest submit task request
type SubmitRequest struct {
	Input       map[string]interface{} `json:"input" binding:"required"`
	AffinityKey string                 `json:"affinity_key,omitempty"`
}

// SubmitResponse submit task response
type SubmitResponse struct {
	ID     string     `json:"id"`
	Status TaskStatus `json:"status"`
}

// StatusResponse task status response
type StatusResponse struct {
	ID          string                 `json:"id"`
	Status      TaskStatus             `json:"status"`
	WorkerID    string                 `json:"worker_id,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// ToJSON converts task to JSON bytes
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON converts JSON bytes to task
func (t *Task) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

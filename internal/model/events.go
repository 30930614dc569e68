package model

import (
	"time"
)

// Event structured cluster event published on the bus
type Event struct {
	Name      string      `json:"name"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(name string, payload interface{}) Event {
	return Event{Name: name, Timestamp: time.Now(), Payload: payload}
}

// WorkerEventPayload payload for worker lifecycle events
type WorkerEventPayload struct {
	WorkerID string `json:"worker_id"`
	PID      int    `json:"pid,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Restarts int    `json:"restarts,omitempty"`
}

// HealthEventPayload payload for worker health transitions
type HealthEventPayload struct {
	WorkerID            string      `json:"worker_id"`
	Health              HealthState `json:"health"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	Reason              string      `json:"reason,omitempty"`
}

// ScalingEventPayload payload for scaling lifecycle events
type ScalingEventPayload struct {
	Action      ScalingAction `json:"action"`
	FromWorkers int           `json:"from_workers"`
	ToWorkers   int           `json:"to_workers"`
	Reason      string        `json:"reason"`
	Confidence  float64       `json:"confidence"`
	Success     *bool         `json:"success,omitempty"` // Set on completion events only
}

// BalancerEventPayload payload for load balancer changes
type BalancerEventPayload struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason,omitempty"`
}

// IPCEventPayload payload for message delivery events
type IPCEventPayload struct {
	EnvelopeID string      `json:"envelope_id"`
	Type       MessageType `json:"type"`
	WorkerID   string      `json:"worker_id,omitempty"` // Empty for broadcasts
	Targets    int         `json:"targets,omitempty"`
	Failed     int         `json:"failed,omitempty"`
}

// StateEventPayload payload for cluster state persistence events
type StateEventPayload struct {
	State   ClusterState `json:"state"`
	Workers int          `json:"workers"`
	SavedAt time.Time    `json:"saved_at"`
}

package model

import (
	"encoding/json"
	"time"
)

// MessageType control-channel frame type
type MessageType string

const (
	// Worker -> coordinator
	MessageOnline     MessageType = "online"
	MessageHeartbeat  MessageType = "heartbeat"
	MessagePong       MessageType = "pong"
	MessageDrained    MessageType = "drained"
	MessageTaskResult MessageType = "task:result"

	// Coordinator -> worker
	MessagePing         MessageType = "ping"
	MessageDrain        MessageType = "drain"
	MessageShutdown     MessageType = "shutdown"
	MessageTaskDispatch MessageType = "task:dispatch"
	MessageBroadcast    MessageType = "broadcast"

	// Application payloads relayed verbatim in either direction
	MessageApp MessageType = "app"
)

// Envelope wire frame exchanged over the worker control channel
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	From      string          `json:"from"` // "coordinator" or a worker id
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EnvelopeFromCoordinator marks coordinator-originated frames.
const EnvelopeFromCoordinator = "coordinator"

// OnlinePayload readiness report a worker sends right after registering
type OnlinePayload struct {
	WorkerID string `json:"worker_id"`
	PID      int    `json:"pid"`
	Version  string `json:"version,omitempty"`
}

// PingPayload health probe request; the nonce correlates the pong
type PingPayload struct {
	Nonce string `json:"nonce"`
}

// PongPayload health probe reply
type PongPayload struct {
	Nonce    string `json:"nonce"`
	WorkerID string `json:"worker_id"`
}

// TaskDispatchPayload unit of work routed to a worker
type TaskDispatchPayload struct {
	TaskID string                 `json:"task_id"`
	Input  map[string]interface{} `json:"input,omitempty"`
}

// TaskResultPayload completion report for a dispatched task
type TaskResultPayload struct {
	TaskID     string                 `json:"task_id"`
	WorkerID   string                 `json:"worker_id"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs float64                `json:"duration_ms"`
}

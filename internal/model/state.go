package model

import (
	"time"
)

// ClusterState lifecycle state machine of the whole cluster
type ClusterState string

const (
	StateInitializing ClusterState = "initializing"
	StateStarting     ClusterState = "starting"
	StateRunning      ClusterState = "running"
	StatePaused       ClusterState = "paused"
	StateDegraded     ClusterState = "degraded"
	StateStopping     ClusterState = "stopping"
	StateStopped      ClusterState = "stopped"
	StateError        ClusterState = "error"
)

func (s ClusterState) String() string {
	return string(s)
}

// WorkerSummary compact worker view persisted inside snapshots
type WorkerSummary struct {
	ID       string       `json:"id"`
	PID      int          `json:"pid"`
	Status   WorkerStatus `json:"status"`
	Health   HealthState  `json:"health"`
	Restarts int          `json:"restarts"`
}

// ClusterSnapshot persisted cluster state. Restoring re-applies the desired
// worker count and the scaling history tail; live workers are never revived
// from a snapshot.
type ClusterSnapshot struct {
	ClusterID      string          `json:"cluster_id"`
	State          ClusterState    `json:"state"`
	DesiredWorkers int             `json:"desired_workers"`
	Workers        []WorkerSummary `json:"workers"`
	History        []ScalingRecord `json:"history"`
	ConfigChecksum string          `json:"config_checksum"`
	SavedAt        time.Time       `json:"saved_at"`
}

package constants

import "time"

// Worker pool defaults
const (
	DefaultMinWorkers      = 1
	DefaultMaxWorkers      = 16
	DefaultStartTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRestartDelay    = time.Second
	DefaultMaxRestarts     = 5
	RestartWindow          = 10 * time.Minute // maxRestarts counted inside this rolling window
)

// Health monitoring defaults
const (
	DefaultHealthInterval    = 30 * time.Second
	DefaultHealthTimeout     = 5 * time.Second
	DefaultHealthRetries     = 3
	DefaultHeartbeatInterval = 5 * time.Second
	HeartbeatStaleFactor     = 2 // Heartbeat older than factor * interval counts as a missed probe
)

// Cluster health thresholds. The healthy-fraction verdict and the breaker
// fraction are deliberately independent knobs.
const (
	DefaultHealthyFraction        = 0.7
	DefaultCriticalFraction       = 0.5
	DefaultBreakerClusterFraction = 0.5
	DefaultBreakerWorkerFailures  = 5
)

// Metrics defaults
const (
	DefaultMetricsInterval = 10 * time.Second
	DefaultWindowSize      = 100 // Rolling response-time samples kept per worker
)

// Deployment defaults
const (
	DefaultMaxUnavailable = 1
	DefaultSettleDelay    = 2 * time.Second
)

// ClusterIDPrefix prefixes generated cluster ids.
const ClusterIDPrefix = "fortify"

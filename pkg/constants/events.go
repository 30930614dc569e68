package constants

// Cluster event names. Consumers subscribe through the event bus; the
// names are part of the public surface (WebSocket stream, audit rows).
const (
	EventWorkerStarted        = "worker:started"
	EventWorkerDied           = "worker:died"
	EventWorkerRestarted      = "worker:restarted"
	EventWorkerHealthWarning  = "worker:health:warning"
	EventWorkerHealthCritical = "worker:health:critical"

	EventClusterScaled    = "cluster:scaled"
	EventScalingTriggered = "scaling:triggered"
	EventScalingExecuting = "scaling:executing"
	EventScalingCompleted = "scaling:completed"
	EventScalingSkipped   = "scaling:skipped"

	EventLoadBalancerUpdated = "loadbalancer:updated"
	EventIPCMessage          = "ipc:message"
	EventIPCBroadcast        = "ipc:broadcast"
	EventClusterStateSaved   = "cluster:state:saved"
)

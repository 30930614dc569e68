package constants

// Worker spawn arguments. The coordinator passes the JSON spawn spec as
// `worker --spec <json>`; nothing worker-identifying travels via env vars.
const (
	WorkerSubcommand = "worker"
	WorkerSpecFlag   = "--spec"
)

// Control channel endpoints
const (
	WorkerSocketPath = "/internal/v1/worker/ws"
	EventSocketPath  = "/api/v1/ws/events"
)

// WorkerAuthHeader carries the spawn token when a worker dials back.
const WorkerAuthHeader = "X-Worker-Token"

// WorkerIDHeader identifies the dialing worker on the registration socket.
const WorkerIDHeader = "X-Worker-ID"

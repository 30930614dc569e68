package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" json:"server"`
	Redis        RedisConfig        `yaml:"redis" json:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql" json:"mysql"`
	Queue        QueueConfig        `yaml:"queue" json:"queue"`
	Logger       LoggerConfig       `yaml:"logger" json:"logger"`
	Cluster      ClusterConfig      `yaml:"cluster" json:"cluster"`
	State        StateConfig        `yaml:"state" json:"state"`
	Notification NotificationConfig `yaml:"notification" json:"notification"`
}

// ServerConfig control API server configuration
type ServerConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Mode   string `yaml:"mode" json:"mode"`       // debug, release
	APIKey string `yaml:"api_key" json:"api_key"` // API key for control API auth (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration. Empty addr disables the state store,
// the distributed lock, and the redis queue provider.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// MySQLConfig audit store configuration. Empty host disables archiving.
type MySQLConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
}

// QueueConfig work ingestion queue configuration
type QueueConfig struct {
	Provider    string `yaml:"provider" json:"provider"`         // asynq, redis, none
	Concurrency int    `yaml:"concurrency" json:"concurrency"`   // dispatch concurrency
	MaxRetry    int    `yaml:"max_retry" json:"max_retry"`       // maximum retry count
	TaskTimeout int    `yaml:"task_timeout" json:"task_timeout"` // task timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level" json:"level"`   // debug, info, warn, error
	Output string           `yaml:"output" json:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file" json:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StateConfig snapshot persistence configuration
type StateConfig struct {
	SaveInterval int    `yaml:"save_interval" json:"save_interval"` // seconds; 0 disables the periodic save job
	KeyPrefix    string `yaml:"key_prefix" json:"key_prefix"`
}

// NotificationConfig webhook alerting configuration
type NotificationConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

// WorkerCount desired worker count, either a fixed number or "auto"
// (resolved against host capacity at start).
type WorkerCount struct {
	Auto  bool
	Count int
}

func (w *WorkerCount) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		w.Count = n
		w.Auto = n <= 0
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("workers must be an integer or \"auto\": %w", err)
	}
	if s == "auto" || s == "" {
		w.Auto = true
		return nil
	}
	return fmt.Errorf("invalid workers value %q", s)
}

func (w WorkerCount) MarshalYAML() (interface{}, error) {
	if w.Auto {
		return "auto", nil
	}
	return w.Count, nil
}

func (w WorkerCount) MarshalJSON() ([]byte, error) {
	if w.Auto {
		return []byte(`"auto"`), nil
	}
	return []byte(fmt.Sprintf("%d", w.Count)), nil
}

// Resolve returns the concrete count, substituting autoCount when the
// value is "auto" or unset.
func (w WorkerCount) Resolve(autoCount int) int {
	if w.Auto || w.Count <= 0 {
		return autoCount
	}
	return w.Count
}

// WorkerSpawnConfig command a worker slot runs. Empty command self-executes
// the current binary with the worker subcommand.
type WorkerSpawnConfig struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	Version string            `yaml:"version" json:"version"`
}

// HealthCheckConfig probe loop configuration
type HealthCheckConfig struct {
	Enabled           *bool `yaml:"enabled" json:"enabled"`
	Interval          int   `yaml:"interval" json:"interval"`                     // seconds
	Timeout           int   `yaml:"timeout" json:"timeout"`                       // seconds, per probe
	Retries           int   `yaml:"retries" json:"retries"`                       // consecutive failures before critical
	HeartbeatInterval int   `yaml:"heartbeat_interval" json:"heartbeat_interval"` // seconds
	AutoReplace       *bool `yaml:"auto_replace" json:"auto_replace"`
}

// MetricsConfig collector configuration
type MetricsConfig struct {
	Interval   int `yaml:"interval" json:"interval"`       // seconds
	WindowSize int `yaml:"window_size" json:"window_size"` // rolling response-time samples per worker
}

// UpThresholds scale-up trigger levels. A zero threshold means the signal
// is not configured and never contributes to the score.
type UpThresholds struct {
	CPU          float64 `yaml:"cpu" json:"cpu"`                     // percent
	Memory       float64 `yaml:"memory" json:"memory"`               // percent
	ResponseTime float64 `yaml:"response_time" json:"response_time"` // milliseconds
	QueueLength  int     `yaml:"queue_length" json:"queue_length"`
}

// DownThresholds scale-down trigger levels; zero disables a signal.
type DownThresholds struct {
	CPU      float64 `yaml:"cpu" json:"cpu"`             // percent, fires below
	Memory   float64 `yaml:"memory" json:"memory"`       // percent, fires below
	IdleTime int     `yaml:"idle_time" json:"idle_time"` // seconds without dispatched work
}

// ScalingWeights score contribution of each breached signal. Zero falls
// back to the named default. Heuristic values; tune per deployment.
type ScalingWeights struct {
	UpCPU          float64 `yaml:"up_cpu" json:"up_cpu"`
	UpMemory       float64 `yaml:"up_memory" json:"up_memory"`
	UpResponseTime float64 `yaml:"up_response_time" json:"up_response_time"`
	UpQueueLength  float64 `yaml:"up_queue_length" json:"up_queue_length"`
	DownCPU        float64 `yaml:"down_cpu" json:"down_cpu"`
	DownMemory     float64 `yaml:"down_memory" json:"down_memory"`
	DownIdle       float64 `yaml:"down_idle" json:"down_idle"`
}

// ScalingConfig autoscaler configuration
type ScalingConfig struct {
	Enabled            *bool          `yaml:"enabled" json:"enabled"`
	MinWorkers         int            `yaml:"min_workers" json:"min_workers"`                 // 0 inherits cluster.min_workers
	MaxWorkers         int            `yaml:"max_workers" json:"max_workers"`                 // 0 inherits cluster.max_workers
	EvaluationInterval int            `yaml:"evaluation_interval" json:"evaluation_interval"` // seconds
	ScaleUpThreshold   UpThresholds   `yaml:"scale_up_threshold" json:"scale_up_threshold"`
	ScaleDownThreshold DownThresholds `yaml:"scale_down_threshold" json:"scale_down_threshold"`
	ScaleStep          int            `yaml:"scale_step" json:"scale_step"`
	CooldownPeriod     int            `yaml:"cooldown_period" json:"cooldown_period"` // seconds
	Weights            ScalingWeights `yaml:"weights" json:"weights"`
	ConfidenceFloor    float64        `yaml:"confidence_floor" json:"confidence_floor"`
	HistoryCapacity    int            `yaml:"history_capacity" json:"history_capacity"`
}

// LoadBalancingConfig routing configuration
type LoadBalancingConfig struct {
	Strategy           string         `yaml:"strategy" json:"strategy"` // round-robin, least-connections, ip-hash, weighted
	Weights            map[string]int `yaml:"weights" json:"weights"`
	SessionAffinityKey string         `yaml:"session_affinity_key" json:"session_affinity_key"`
}

// DeploymentConfig rolling update configuration
type DeploymentConfig struct {
	MaxUnavailable int `yaml:"max_unavailable" json:"max_unavailable"`
	SettleDelay    int `yaml:"settle_delay" json:"settle_delay"` // seconds between batches
}

// Error containment policies
const (
	ErrorPolicyLog     = "log"
	ErrorPolicyRestart = "restart"
)

// ErrorHandlingConfig fatal-failure policies: Panic covers synchronous
// crashes surfaced through recovery, BackgroundError covers fatal failures
// reported by background loops.
type ErrorHandlingConfig struct {
	Panic           string `yaml:"panic" json:"panic"`                       // log, restart
	BackgroundError string `yaml:"background_error" json:"background_error"` // log, restart
}

// ThresholdsConfig cluster health and breaker thresholds. The healthy
// verdict fraction and the breaker fraction are independent policies.
type ThresholdsConfig struct {
	HealthyFraction        float64 `yaml:"healthy_fraction" json:"healthy_fraction"`
	CriticalFraction       float64 `yaml:"critical_fraction" json:"critical_fraction"`
	BreakerClusterFraction float64 `yaml:"breaker_cluster_fraction" json:"breaker_cluster_fraction"`
	BreakerWorkerFailures  int     `yaml:"breaker_worker_failures" json:"breaker_worker_failures"`
}

// ClusterConfig the full orchestration configuration. Immutable after
// cluster start except through the explicit update entry points.
type ClusterConfig struct {
	ID               string              `yaml:"id" json:"id"`
	Workers          WorkerCount         `yaml:"workers" json:"workers"`
	MinWorkers       int                 `yaml:"min_workers" json:"min_workers"`
	MaxWorkers       int                 `yaml:"max_workers" json:"max_workers"`
	RestartDelay     int                 `yaml:"restart_delay" json:"restart_delay"` // seconds
	MaxRestarts      int                 `yaml:"max_restarts" json:"max_restarts"`
	GracefulShutdown *bool               `yaml:"graceful_shutdown" json:"graceful_shutdown"`
	StartTimeout     int                 `yaml:"start_timeout" json:"start_timeout"`       // seconds
	ShutdownTimeout  int                 `yaml:"shutdown_timeout" json:"shutdown_timeout"` // seconds
	Worker           WorkerSpawnConfig   `yaml:"worker" json:"worker"`
	HealthCheck      HealthCheckConfig   `yaml:"health_check" json:"health_check"`
	Metrics          MetricsConfig       `yaml:"metrics" json:"metrics"`
	Scaling          ScalingConfig       `yaml:"scaling" json:"scaling"`
	LoadBalancing    LoadBalancingConfig `yaml:"load_balancing" json:"load_balancing"`
	Deployment       DeploymentConfig    `yaml:"deployment" json:"deployment"`
	ErrorHandling    ErrorHandlingConfig `yaml:"error_handling" json:"error_handling"`
	Thresholds       ThresholdsConfig    `yaml:"thresholds" json:"thresholds"`
}

// ScalingBounds returns the effective autoscaler bounds, inheriting the
// cluster-level bounds where the scaling section leaves them unset.
func (c *ClusterConfig) ScalingBounds() (min, max int) {
	min, max = c.MinWorkers, c.MaxWorkers
	if c.Scaling.MinWorkers > 0 {
		min = c.Scaling.MinWorkers
	}
	if c.Scaling.MaxWorkers > 0 {
		max = c.Scaling.MaxWorkers
	}
	return min, max
}

// Init initializes configuration from CONFIG_PATH or config/config.yaml.
// A missing default file yields the built-in defaults; a missing explicit
// CONFIG_PATH is an error.
func Init() error {
	// Local development keeps CONFIG_PATH and webhook URLs in a .env
	// file; a missing file is not an error.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg = Default()
		} else {
			return err
		}
	}

	GlobalConfig = cfg
	return nil
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func boolPtr(v bool) *bool { return &v }

// ApplyDefaults fills every unset field with its documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
	if cfg.Queue.Provider == "" {
		cfg.Queue.Provider = "none"
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 10
	}
	if cfg.Queue.MaxRetry == 0 {
		cfg.Queue.MaxRetry = 3
	}
	if cfg.Queue.TaskTimeout == 0 {
		cfg.Queue.TaskTimeout = 60
	}
	if cfg.State.KeyPrefix == "" {
		cfg.State.KeyPrefix = "fortify:cluster"
	}

	applyClusterDefaults(&cfg.Cluster)
}

func applyClusterDefaults(c *ClusterConfig) {
	if c.MinWorkers == 0 {
		c.MinWorkers = constants.DefaultMinWorkers
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = constants.DefaultMaxWorkers
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = int(constants.DefaultRestartDelay.Seconds())
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = constants.DefaultMaxRestarts
	}
	if c.GracefulShutdown == nil {
		c.GracefulShutdown = boolPtr(true)
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = int(constants.DefaultStartTimeout.Seconds())
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = int(constants.DefaultShutdownTimeout.Seconds())
	}

	hc := &c.HealthCheck
	if hc.Enabled == nil {
		hc.Enabled = boolPtr(true)
	}
	if hc.Interval == 0 {
		hc.Interval = int(constants.DefaultHealthInterval.Seconds())
	}
	if hc.Timeout == 0 {
		hc.Timeout = int(constants.DefaultHealthTimeout.Seconds())
	}
	if hc.Retries == 0 {
		hc.Retries = constants.DefaultHealthRetries
	}
	if hc.HeartbeatInterval == 0 {
		hc.HeartbeatInterval = int(constants.DefaultHeartbeatInterval.Seconds())
	}
	if hc.AutoReplace == nil {
		hc.AutoReplace = boolPtr(true)
	}

	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = int(constants.DefaultMetricsInterval.Seconds())
	}
	if c.Metrics.WindowSize == 0 {
		c.Metrics.WindowSize = constants.DefaultWindowSize
	}

	sc := &c.Scaling
	if sc.Enabled == nil {
		sc.Enabled = boolPtr(true)
	}
	if sc.EvaluationInterval == 0 {
		sc.EvaluationInterval = int(constants.DefaultEvaluationInterval.Seconds())
	}
	if sc.ScaleStep == 0 {
		sc.ScaleStep = constants.DefaultScaleStep
	}
	if sc.CooldownPeriod == 0 {
		sc.CooldownPeriod = int(constants.DefaultCooldownPeriod.Seconds())
	}
	if sc.ConfidenceFloor == 0 {
		sc.ConfidenceFloor = constants.ConfidenceFloor
	}
	if sc.HistoryCapacity == 0 {
		sc.HistoryCapacity = constants.DefaultHistoryCapacity
	}
	w := &sc.Weights
	if w.UpCPU == 0 {
		w.UpCPU = constants.DefaultWeightUpCPU
	}
	if w.UpMemory == 0 {
		w.UpMemory = constants.DefaultWeightUpMemory
	}
	if w.UpResponseTime == 0 {
		w.UpResponseTime = constants.DefaultWeightUpResponseTime
	}
	if w.UpQueueLength == 0 {
		w.UpQueueLength = constants.DefaultWeightUpQueueLength
	}
	if w.DownCPU == 0 {
		w.DownCPU = constants.DefaultWeightDownCPU
	}
	if w.DownMemory == 0 {
		w.DownMemory = constants.DefaultWeightDownMemory
	}
	if w.DownIdle == 0 {
		w.DownIdle = constants.DefaultWeightDownIdle
	}

	if c.LoadBalancing.Strategy == "" {
		c.LoadBalancing.Strategy = "round-robin"
	}

	if c.Deployment.MaxUnavailable == 0 {
		c.Deployment.MaxUnavailable = constants.DefaultMaxUnavailable
	}
	if c.Deployment.SettleDelay == 0 {
		c.Deployment.SettleDelay = int(constants.DefaultSettleDelay.Seconds())
	}

	if c.ErrorHandling.Panic == "" {
		c.ErrorHandling.Panic = ErrorPolicyLog
	}
	if c.ErrorHandling.BackgroundError == "" {
		c.ErrorHandling.BackgroundError = ErrorPolicyLog
	}

	t := &c.Thresholds
	if t.HealthyFraction == 0 {
		t.HealthyFraction = constants.DefaultHealthyFraction
	}
	if t.CriticalFraction == 0 {
		t.CriticalFraction = constants.DefaultCriticalFraction
	}
	if t.BreakerClusterFraction == 0 {
		t.BreakerClusterFraction = constants.DefaultBreakerClusterFraction
	}
	if t.BreakerWorkerFailures == 0 {
		t.BreakerWorkerFailures = constants.DefaultBreakerWorkerFailures
	}
}

// Merge overlays non-zero override fields onto a copy of the receiver.
// Optional booleans use pointers so an explicit false survives the merge.
func (c ClusterConfig) Merge(override *ClusterConfig) ClusterConfig {
	if override == nil {
		return c
	}
	merged := c

	if override.ID != "" {
		merged.ID = override.ID
	}
	if override.Workers.Auto || override.Workers.Count > 0 {
		merged.Workers = override.Workers
	}
	if override.MinWorkers > 0 {
		merged.MinWorkers = override.MinWorkers
	}
	if override.MaxWorkers > 0 {
		merged.MaxWorkers = override.MaxWorkers
	}
	if override.RestartDelay > 0 {
		merged.RestartDelay = override.RestartDelay
	}
	if override.MaxRestarts > 0 {
		merged.MaxRestarts = override.MaxRestarts
	}
	if override.GracefulShutdown != nil {
		merged.GracefulShutdown = override.GracefulShutdown
	}
	if override.StartTimeout > 0 {
		merged.StartTimeout = override.StartTimeout
	}
	if override.ShutdownTimeout > 0 {
		merged.ShutdownTimeout = override.ShutdownTimeout
	}
	if override.Worker.Command != "" {
		merged.Worker.Command = override.Worker.Command
	}
	if override.Worker.Args != nil {
		merged.Worker.Args = override.Worker.Args
	}
	if override.Worker.Env != nil {
		merged.Worker.Env = override.Worker.Env
	}
	if override.Worker.Version != "" {
		merged.Worker.Version = override.Worker.Version
	}
	if override.HealthCheck.Enabled != nil {
		merged.HealthCheck.Enabled = override.HealthCheck.Enabled
	}
	if override.HealthCheck.Interval > 0 {
		merged.HealthCheck.Interval = override.HealthCheck.Interval
	}
	if override.HealthCheck.Timeout > 0 {
		merged.HealthCheck.Timeout = override.HealthCheck.Timeout
	}
	if override.HealthCheck.Retries > 0 {
		merged.HealthCheck.Retries = override.HealthCheck.Retries
	}
	if override.HealthCheck.HeartbeatInterval > 0 {
		merged.HealthCheck.HeartbeatInterval = override.HealthCheck.HeartbeatInterval
	}
	if override.HealthCheck.AutoReplace != nil {
		merged.HealthCheck.AutoReplace = override.HealthCheck.AutoReplace
	}
	if override.Metrics.Interval > 0 {
		merged.Metrics.Interval = override.Metrics.Interval
	}
	if override.Metrics.WindowSize > 0 {
		merged.Metrics.WindowSize = override.Metrics.WindowSize
	}
	mergeScaling(&merged.Scaling, &override.Scaling)
	if override.LoadBalancing.Strategy != "" {
		merged.LoadBalancing.Strategy = override.LoadBalancing.Strategy
	}
	if override.LoadBalancing.Weights != nil {
		merged.LoadBalancing.Weights = override.LoadBalancing.Weights
	}
	if override.LoadBalancing.SessionAffinityKey != "" {
		merged.LoadBalancing.SessionAffinityKey = override.LoadBalancing.SessionAffinityKey
	}
	if override.Deployment.MaxUnavailable > 0 {
		merged.Deployment.MaxUnavailable = override.Deployment.MaxUnavailable
	}
	if override.Deployment.SettleDelay > 0 {
		merged.Deployment.SettleDelay = override.Deployment.SettleDelay
	}
	if override.ErrorHandling.Panic != "" {
		merged.ErrorHandling.Panic = override.ErrorHandling.Panic
	}
	if override.ErrorHandling.BackgroundError != "" {
		merged.ErrorHandling.BackgroundError = override.ErrorHandling.BackgroundError
	}
	if override.Thresholds.HealthyFraction > 0 {
		merged.Thresholds.HealthyFraction = override.Thresholds.HealthyFraction
	}
	if override.Thresholds.CriticalFraction > 0 {
		merged.Thresholds.CriticalFraction = override.Thresholds.CriticalFraction
	}
	if override.Thresholds.BreakerClusterFraction > 0 {
		merged.Thresholds.BreakerClusterFraction = override.Thresholds.BreakerClusterFraction
	}
	if override.Thresholds.BreakerWorkerFailures > 0 {
		merged.Thresholds.BreakerWorkerFailures = override.Thresholds.BreakerWorkerFailures
	}

	return merged
}

func mergeScaling(dst, src *ScalingConfig) {
	if src.Enabled != nil {
		dst.Enabled = src.Enabled
	}
	if src.MinWorkers > 0 {
		dst.MinWorkers = src.MinWorkers
	}
	if src.MaxWorkers > 0 {
		dst.MaxWorkers = src.MaxWorkers
	}
	if src.EvaluationInterval > 0 {
		dst.EvaluationInterval = src.EvaluationInterval
	}
	if src.ScaleStep > 0 {
		dst.ScaleStep = src.ScaleStep
	}
	if src.CooldownPeriod > 0 {
		dst.CooldownPeriod = src.CooldownPeriod
	}
	if src.ConfidenceFloor > 0 {
		dst.ConfidenceFloor = src.ConfidenceFloor
	}
	if src.HistoryCapacity > 0 {
		dst.HistoryCapacity = src.HistoryCapacity
	}

	up := src.ScaleUpThreshold
	if up.CPU > 0 {
		dst.ScaleUpThreshold.CPU = up.CPU
	}
	if up.Memory > 0 {
		dst.ScaleUpThreshold.Memory = up.Memory
	}
	if up.ResponseTime > 0 {
		dst.ScaleUpThreshold.ResponseTime = up.ResponseTime
	}
	if up.QueueLength > 0 {
		dst.ScaleUpThreshold.QueueLength = up.QueueLength
	}
	down := src.ScaleDownThreshold
	if down.CPU > 0 {
		dst.ScaleDownThreshold.CPU = down.CPU
	}
	if down.Memory > 0 {
		dst.ScaleDownThreshold.Memory = down.Memory
	}
	if down.IdleTime > 0 {
		dst.ScaleDownThreshold.IdleTime = down.IdleTime
	}

	w := src.Weights
	if w.UpCPU > 0 {
		dst.Weights.UpCPU = w.UpCPU
	}
	if w.UpMemory > 0 {
		dst.Weights.UpMemory = w.UpMemory
	}
	if w.UpResponseTime > 0 {
		dst.Weights.UpResponseTime = w.UpResponseTime
	}
	if w.UpQueueLength > 0 {
		dst.Weights.UpQueueLength = w.UpQueueLength
	}
	if w.DownCPU > 0 {
		dst.Weights.DownCPU = w.DownCPU
	}
	if w.DownMemory > 0 {
		dst.Weights.DownMemory = w.DownMemory
	}
	if w.DownIdle > 0 {
		dst.Weights.DownIdle = w.DownIdle
	}
}

// Validate rejects configurations the cluster cannot run with.
func (cfg *Config) Validate() error {
	c := &cfg.Cluster
	if c.MinWorkers < 1 {
		return fmt.Errorf("cluster.min_workers must be at least 1, got %d", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("cluster.max_workers (%d) must be >= cluster.min_workers (%d)", c.MaxWorkers, c.MinWorkers)
	}
	smin, smax := c.ScalingBounds()
	if smax < smin {
		return fmt.Errorf("scaling.max_workers (%d) must be >= scaling.min_workers (%d)", smax, smin)
	}
	switch c.LoadBalancing.Strategy {
	case "round-robin", "least-connections", "ip-hash", "weighted":
	default:
		return fmt.Errorf("unknown load balancing strategy %q", c.LoadBalancing.Strategy)
	}
	if err := validatePolicy("error_handling.panic", c.ErrorHandling.Panic); err != nil {
		return err
	}
	if err := validatePolicy("error_handling.background_error", c.ErrorHandling.BackgroundError); err != nil {
		return err
	}
	for name, f := range map[string]float64{
		"thresholds.healthy_fraction":         c.Thresholds.HealthyFraction,
		"thresholds.critical_fraction":        c.Thresholds.CriticalFraction,
		"thresholds.breaker_cluster_fraction": c.Thresholds.BreakerClusterFraction,
	} {
		if f <= 0 || f > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, f)
		}
	}
	if c.Deployment.MaxUnavailable < 1 {
		return fmt.Errorf("deployment.max_unavailable must be at least 1, got %d", c.Deployment.MaxUnavailable)
	}
	switch cfg.Queue.Provider {
	case "asynq", "redis", "none":
	default:
		return fmt.Errorf("unknown queue provider %q", cfg.Queue.Provider)
	}
	return nil
}

func validatePolicy(name, v string) error {
	if v != ErrorPolicyLog && v != ErrorPolicyRestart {
		return fmt.Errorf("%s must be %q or %q, got %q", name, ErrorPolicyLog, ErrorPolicyRestart, v)
	}
	return nil
}

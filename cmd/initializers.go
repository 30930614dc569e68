package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/NEHONIX/FortifyJS-sub002/app/handler"
	"github.com/NEHONIX/FortifyJS-sub002/app/router"
	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/autoscaler"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/capacity"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/health"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/ipc"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/metrics"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/notification"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/pubsub"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/queue"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/resource"
	mysqlstore "github.com/NEHONIX/FortifyJS-sub002/pkg/store/mysql"
	redisstore "github.com/NEHONIX/FortifyJS-sub002/pkg/store/redis"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/worker"
)

// eventBusBuffer is the per-subscriber channel depth of the cluster
// event bus. Slow subscribers drop events past this depth rather than
// stall the publishers.
const eventBusBuffer = 256

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initRedis initializes Redis. An empty address disables the durable
// state layer: snapshots, the worker PID registry, and distributed
// locks all degrade to single-instance in-memory behavior.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.InfoCtx(app.ctx, "Redis not configured, state persistence disabled")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	keyPrefix := app.config.State.KeyPrefix
	app.stateRepo = redisstore.NewStateRepository(client, keyPrefix)
	return nil
}

// initMySQL initializes MySQL. An empty host disables the audit trail;
// scaling decisions and worker lifecycle events stay in memory only.
func (app *Application) initMySQL() error {
	if app.config.MySQL.Host == "" {
		logger.InfoCtx(app.ctx, "MySQL not configured, audit trail disabled")
		return nil
	}

	repo, err := mysqlstore.NewRepository(mysqlstore.BuildDSN(app.config.MySQL))
	if err != nil {
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initEventBus creates the cluster event bus and attaches the
// subscribers that exist independently of the cluster core: the webhook
// notifier, the audit archiver, and the worker PID registry feed.
func (app *Application) initEventBus() error {
	app.bus = pubsub.NewFanout[model.Event](eventBusBuffer)

	clusterID := app.config.Cluster.ID

	if app.mysqlRepo != nil {
		app.auditStore = mysqlstore.NewAuditStore(app.mysqlRepo, clusterID)
		if err := app.bus.Subscribe(app.ctx, pubsub.SubscriberFunc[model.Event](app.archiveWorkerEvent)); err != nil {
			return fmt.Errorf("failed to attach audit subscriber: %w", err)
		}
	}

	if app.stateRepo != nil {
		if err := app.bus.Subscribe(app.ctx, pubsub.SubscriberFunc[model.Event](app.trackWorkerPID)); err != nil {
			return fmt.Errorf("failed to attach PID registry subscriber: %w", err)
		}
	}

	app.notifier = notification.NewWebhookNotifier(app.config.Notification, clusterID)
	if app.notifier.Enabled() {
		if err := app.notifier.Subscribe(app.ctx, app.bus); err != nil {
			return fmt.Errorf("failed to attach webhook notifier: %w", err)
		}
	}

	return nil
}

// archiveWorkerEvent persists worker lifecycle and health events to the
// MySQL audit trail. Scaling records are written by the autoscaler
// executor directly; archiving them here would double-count.
func (app *Application) archiveWorkerEvent(ctx context.Context, event model.Event) error {
	switch event.Name {
	case constants.EventWorkerStarted,
		constants.EventWorkerDied,
		constants.EventWorkerRestarted,
		constants.EventWorkerHealthWarning,
		constants.EventWorkerHealthCritical:
		if err := app.auditStore.SaveWorkerEvent(ctx, event); err != nil {
			logger.WarnCtx(ctx, "failed to archive worker event %s: %v", event.Name, err)
		}
	}
	return nil
}

// trackWorkerPID mirrors worker starts and exits into the durable PID
// registry the orphan reaper diffs against after a coordinator crash.
func (app *Application) trackWorkerPID(ctx context.Context, event model.Event) error {
	payload, ok := event.Payload.(model.WorkerEventPayload)
	if !ok {
		return nil
	}
	switch event.Name {
	case constants.EventWorkerStarted:
		if payload.PID > 0 {
			if err := app.stateRepo.RecordWorkerPID(ctx, payload.WorkerID, payload.PID); err != nil {
				logger.WarnCtx(ctx, "failed to record PID for worker %s: %v", payload.WorkerID, err)
			}
		}
	case constants.EventWorkerDied:
		if err := app.stateRepo.ForgetWorkerPID(ctx, payload.WorkerID); err != nil {
			logger.WarnCtx(ctx, "failed to forget PID for worker %s: %v", payload.WorkerID, err)
		}
	}
	return nil
}

// initCluster wires the cluster core: host capacity, the worker
// registry, health monitoring, metrics collection, load balancing, the
// autoscaler, and the orchestrator that drives them.
func (app *Application) initCluster() error {
	cfg := app.config

	// Resolve the "auto" worker count from host capacity.
	provider := capacity.NewProvider(capacity.ProviderLocal, 0, 0)
	hc, err := provider.Capacity(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to probe host capacity: %w", err)
	}
	min, max := cfg.Cluster.ScalingBounds()
	desired := cfg.Cluster.Workers.Resolve(capacity.RecommendedWorkers(hc, min, max))
	logger.InfoCtx(app.ctx, "host capacity: %d CPUs, %d MB memory, desired workers: %d",
		hc.CPUCount, hc.MemoryBytes/(1024*1024), desired)

	app.hub = ipc.NewHub()
	app.spawnToken = uuid.NewString()

	coordinatorURL := fmt.Sprintf("ws://%s:%d", serverHost(cfg), cfg.Server.Port)
	driver := worker.NewExecDriver(cfg.Cluster.Worker)
	app.workerMgr = worker.NewManager(&cfg.Cluster, driver, app.hub, app.bus,
		cfg.Cluster.ID, coordinatorURL, app.spawnToken)
	app.workerMgr.SetDesired(desired)

	app.healthMon = health.NewMonitor(cfg.Cluster.HealthCheck, cfg.Cluster.Thresholds,
		app.workerMgr, app.hub, app.workerMgr, app.bus)

	app.metricsCol = metrics.NewCollector(cfg.Cluster.Metrics, cfg.Cluster.Thresholds,
		app.workerMgr, app.queueDepth)

	app.loadBalancer = balancer.New(cfg.Cluster.LoadBalancing,
		cfg.Cluster.Metrics.WindowSize, app.workerMgr, app.bus)

	redisConn := app.redisConn()
	app.scalerMgr = autoscaler.NewManager(&cfg.Cluster, app.workerMgr, app.workerMgr,
		app.metricsCol, app.bus, auditOrNil(app.auditStore), redisConn)

	app.ipcMgr = ipc.NewManager(app.hub, app.workerMgr, app.bus)

	var store interfaces.StateStore
	if app.stateRepo != nil {
		store = app.stateRepo
	}
	app.clusterMgr = cluster.NewManager(cfg, cluster.Deps{
		Workers:  app.workerMgr,
		Health:   app.healthMon,
		Metrics:  app.metricsCol,
		Balancer: app.loadBalancer,
		Scaler:   app.scalerMgr,
		IPC:      app.ipcMgr,
		Bus:      app.bus,
		Store:    store,
	})

	if app.stateRepo != nil {
		app.reaper = resource.NewReaper(app.stateRepo, app.workerMgr, nil)
	}

	return nil
}

// initQueue creates the task queue provider and the dispatcher that
// consumes it. Provider "none" leaves the queue nil; task submission
// then dispatches synchronously in the request handler.
func (app *Application) initQueue() error {
	provider, err := queue.CreateQueueProvider(app.config)
	if err != nil {
		return err
	}
	app.queueProvider = provider
	if provider != nil {
		app.registerCleanup(func() {
			if err := provider.Close(); err != nil {
				logger.WarnCtx(app.ctx, "queue provider close error: %v", err)
			}
		})
	}

	taskTimeout := time.Duration(app.config.Queue.TaskTimeout) * time.Second
	app.dispatcher = queue.NewDispatcher(provider, app.loadBalancer, app.hub,
		app.metricsCol, taskTimeout)
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.clusterHandler = handler.NewClusterHandler(app.clusterMgr)
	app.workerHandler = handler.NewWorkerHandler(app.clusterMgr)
	app.healthHandler = handler.NewHealthHandler(app.clusterMgr)
	app.metricsHandler = handler.NewMetricsHandler(app.clusterMgr)
	app.scalingHandler = handler.NewScalingHandler(app.clusterMgr)
	app.balancerHandler = handler.NewBalancerHandler(app.clusterMgr)
	app.ipcHandler = handler.NewIPCHandler(app.clusterMgr)
	app.taskHandler = handler.NewTaskHandler(app.queueProvider, app.dispatcher)
	if app.auditStore != nil {
		app.statisticsHandler = handler.NewStatisticsHandler(app.auditStore)
	}
	app.socketHandler = handler.NewSocketHandler(app.hub, app.bus, app.spawnToken)
	return nil
}

// initHTTPServer initializes the control API server
func (app *Application) initHTTPServer() error {
	onPanic := func(recovered interface{}) {
		app.clusterMgr.HandlePanic(app.ctx, recovered)
	}

	r := router.NewRouter(
		app.clusterHandler,
		app.workerHandler,
		app.healthHandler,
		app.metricsHandler,
		app.scalingHandler,
		app.balancerHandler,
		app.ipcHandler,
		app.taskHandler,
		app.statisticsHandler,
		app.socketHandler,
		app.config.Server.APIKey,
		onPanic,
	)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server
	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}

// queueDepth reports the pending task count to the metrics collector.
func (app *Application) queueDepth(ctx context.Context) (int, error) {
	if app.dispatcher == nil {
		return 0, nil
	}
	return app.dispatcher.PendingDepth(ctx)
}

// redisConn unwraps the raw client; nil when Redis is not configured.
func (app *Application) redisConn() *redis.Client {
	if app.redisClient == nil {
		return nil
	}
	return app.redisClient.GetClient()
}

// auditOrNil avoids handing the autoscaler a typed-nil interface.
func auditOrNil(store *mysqlstore.AuditStore) interfaces.AuditStore {
	if store == nil {
		return nil
	}
	return store
}

// serverHost is the address workers dial back to. Binding on all
// interfaces still means dialing loopback.
func serverHost(cfg *config.Config) string {
	if cfg.Server.Host == "" || cfg.Server.Host == "0.0.0.0" {
		return "127.0.0.1"
	}
	return cfg.Server.Host
}

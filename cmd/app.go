package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/app/handler"
	"github.com/NEHONIX/FortifyJS-sub002/internal/jobs"
	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/autoscaler"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/balancer"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
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

// Application manages the lifecycle of the entire coordinator process
type Application struct {
	// Infrastructure components
	config      *config.Config
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient

	// Event bus and durable state
	bus        *pubsub.Fanout[model.Event]
	stateRepo  *redisstore.StateRepository
	auditStore *mysqlstore.AuditStore

	// Cluster core
	hub          *ipc.Hub
	workerMgr    *worker.Manager
	healthMon    *health.Monitor
	metricsCol   *metrics.Collector
	loadBalancer *balancer.Balancer
	scalerMgr    *autoscaler.Manager
	ipcMgr       *ipc.Manager
	clusterMgr   *cluster.Manager

	// Task ingestion
	queueProvider interfaces.QueueProvider
	dispatcher    *queue.Dispatcher

	// Supporting services
	notifier *notification.WebhookNotifier
	reaper   *resource.Reaper

	// Worker spawn token, shared with the registration socket
	spawnToken string

	// Handler layer
	clusterHandler    *handler.ClusterHandler
	workerHandler     *handler.WorkerHandler
	healthHandler     *handler.HealthHandler
	metricsHandler    *handler.MetricsHandler
	scalingHandler    *handler.ScalingHandler
	balancerHandler   *handler.BalancerHandler
	ipcHandler        *handler.IPCHandler
	taskHandler       *handler.TaskHandler
	statisticsHandler *handler.StatisticsHandler
	socketHandler     *handler.SocketHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine
	listener   net.Listener

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Background task cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	var err error

	// Initialize components in order
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Redis", app.initRedis},
		{"MySQL", app.initMySQL},
		{"Event Bus", app.initEventBus},
		{"Cluster Core", app.initCluster},
		{"Task Queue", app.initQueue},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err = step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components. The HTTP server binds before
// the cluster boots: forked workers register through the worker socket,
// so the listener must be up before the first fork.
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 2. Bind and serve HTTP
	addr := fmt.Sprintf(":%d", app.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	app.listener = listener

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", addr)
		if err := app.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	// 3. Boot the cluster: fork workers, start monitoring and scaling
	if err := app.clusterMgr.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}

	// 4. Start consuming the task queue
	if app.dispatcher != nil {
		if err := app.dispatcher.Start(); err != nil {
			return fmt.Errorf("failed to start task dispatcher: %w", err)
		}
	}

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop ingesting new tasks
	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	// 2. Stop HTTP server (stop accepting new requests)
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 3. Stop the cluster: drain and terminate workers
	if app.clusterMgr != nil && app.clusterMgr.GetState() != model.StateStopped {
		logger.InfoCtx(app.ctx, "Stopping cluster...")
		if err := app.clusterMgr.Stop(shutdownCtx, true); err != nil {
			logger.ErrorCtx(app.ctx, "Cluster stop error: %v", err)
		}
	}

	// 4. Cancel all background tasks
	logger.InfoCtx(app.ctx, "Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 5. Wait for all background tasks to complete
	logger.InfoCtx(app.ctx, "Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 6. Close the event bus and execute cleanup functions (in reverse
	// registration order)
	if app.bus != nil {
		app.bus.Close(shutdownCtx)
	}
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	// 7. Sync logs
	logger.Sync()

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/NEHONIX/FortifyJS-sub002/app/handler"
	"github.com/NEHONIX/FortifyJS-sub002/app/middleware"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

// Router wires the control API surface.
type Router struct {
	clusterHandler    *handler.ClusterHandler
	workerHandler     *handler.WorkerHandler
	healthHandler     *handler.HealthHandler
	metricsHandler    *handler.MetricsHandler
	scalingHandler    *handler.ScalingHandler
	balancerHandler   *handler.BalancerHandler
	ipcHandler        *handler.IPCHandler
	taskHandler       *handler.TaskHandler
	statisticsHandler *handler.StatisticsHandler // nil without an audit database
	socketHandler     *handler.SocketHandler

	apiKey  string
	onPanic func(recovered interface{})
}

// NewRouter creates a new Router
func NewRouter(
	clusterHandler *handler.ClusterHandler,
	workerHandler *handler.WorkerHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	scalingHandler *handler.ScalingHandler,
	balancerHandler *handler.BalancerHandler,
	ipcHandler *handler.IPCHandler,
	taskHandler *handler.TaskHandler,
	statisticsHandler *handler.StatisticsHandler,
	socketHandler *handler.SocketHandler,
	apiKey string,
	onPanic func(recovered interface{}),
) *Router {
	return &Router{
		clusterHandler:    clusterHandler,
		workerHandler:     workerHandler,
		healthHandler:     healthHandler,
		metricsHandler:    metricsHandler,
		scalingHandler:    scalingHandler,
		balancerHandler:   balancerHandler,
		ipcHandler:        ipcHandler,
		taskHandler:       taskHandler,
		statisticsHandler: statisticsHandler,
		socketHandler:     socketHandler,
		apiKey:            apiKey,
		onPanic:           onPanic,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery(r.onPanic))
	engine.Use(middleware.Logger())

	// Worker registration socket. Spawn-token authenticated, never
	// behind the API key.
	engine.GET(constants.WorkerSocketPath, r.socketHandler.WorkerSocket)

	api := engine.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(r.apiKey))
	{
		// Event stream
		api.GET("/ws/events", r.socketHandler.EventSocket)

		cluster := api.Group("/cluster")
		{
			cluster.POST("/start", r.clusterHandler.Start)
			cluster.POST("/stop", r.clusterHandler.Stop)
			cluster.POST("/restart", r.clusterHandler.Restart)
			cluster.POST("/pause", r.clusterHandler.Pause)
			cluster.POST("/resume", r.clusterHandler.Resume)
			cluster.GET("/state", r.clusterHandler.GetState)
			cluster.POST("/state/save", r.clusterHandler.SaveState)
			cluster.POST("/state/restore", r.clusterHandler.RestoreState)
			cluster.GET("/config", r.clusterHandler.ExportConfig)
			cluster.POST("/rolling-update", r.clusterHandler.RollingUpdate)
			cluster.GET("/breaker/:worker_id", r.clusterHandler.BreakerStatus)
			cluster.POST("/breaker/:worker_id/reset", r.clusterHandler.BreakerReset)
		}

		workers := api.Group("/workers")
		{
			workers.GET("", r.workerHandler.List)
			workers.POST("", r.workerHandler.Add)
			workers.GET("/:worker_id", r.workerHandler.Get)
			workers.DELETE("/:worker_id", r.workerHandler.Remove)
			workers.POST("/:worker_id/replace", r.workerHandler.Replace)
			workers.POST("/:worker_id/drain", r.workerHandler.Drain)
		}

		health := api.Group("/health")
		{
			health.GET("/status", r.healthHandler.Status)
			health.POST("/check", r.healthHandler.Check)
			health.POST("/check/:worker_id", r.healthHandler.CheckWorker)
			health.POST("/failures/:worker_id/reset", r.healthHandler.ResetFailures)
		}

		metrics := api.Group("/metrics")
		{
			metrics.GET("", r.metricsHandler.GetMetrics)
			metrics.GET("/workers/:worker_id", r.metricsHandler.GetWorkerMetrics)
			metrics.GET("/aggregated", r.metricsHandler.GetAggregated)
			metrics.GET("/export", r.metricsHandler.Export)
		}

		scaling := api.Group("/scaling")
		{
			scaling.GET("/status", r.scalingHandler.GetStatus)
			scaling.POST("/trigger", r.scalingHandler.Trigger)
			scaling.POST("/up", r.scalingHandler.ScaleUp)
			scaling.POST("/down", r.scalingHandler.ScaleDown)
			scaling.GET("/optimal", r.scalingHandler.Optimal)
			scaling.GET("/history", r.scalingHandler.History)
			scaling.POST("/enable", r.scalingHandler.Enable)
			scaling.POST("/disable", r.scalingHandler.Disable)
		}

		balancer := api.Group("/balancer")
		{
			balancer.GET("/status", r.balancerHandler.GetStatus)
			balancer.PUT("/strategy", r.balancerHandler.UpdateStrategy)
			balancer.PUT("/weights", r.balancerHandler.UpdateWeights)
			balancer.POST("/redistribute", r.balancerHandler.Redistribute)
		}

		ipc := api.Group("/ipc")
		{
			ipc.POST("/workers/:worker_id", r.ipcHandler.Send)
			ipc.POST("/send-all", r.ipcHandler.SendAll)
			ipc.POST("/broadcast", r.ipcHandler.Broadcast)
			ipc.POST("/random", r.ipcHandler.SendRandom)
			ipc.POST("/least-loaded", r.ipcHandler.SendLeastLoaded)
		}

		tasks := api.Group("/tasks")
		{
			tasks.POST("", r.taskHandler.Submit)
			tasks.GET("/queue/depth", r.taskHandler.QueueDepth)
			tasks.GET("/:task_id", r.taskHandler.Status)
			tasks.POST("/:task_id/cancel", r.taskHandler.Cancel)
		}

		if r.statisticsHandler != nil {
			statistics := api.Group("/statistics")
			{
				statistics.GET("/overview", r.statisticsHandler.Overview)
				statistics.GET("/scaling", r.statisticsHandler.Scaling)
				statistics.GET("/worker-events", r.statisticsHandler.WorkerEvents)
			}
		}
	}

	// Liveness probe
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/NEHONIX/FortifyJS-sub002/internal/jobs"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/autoscaler"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/cluster"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/resource"
	mysqlstore "github.com/NEHONIX/FortifyJS-sub002/pkg/store/mysql"
)

// auditRetention is how long scaling and worker-event rows are kept
// before the daily cleanup job deletes them.
const auditRetention = 30 * 24 * time.Hour

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)
	// Job panics go through the same containment policy as API panics.
	manager.OnPanic = func(ctx context.Context, recovered interface{}) {
		app.clusterMgr.HandlePanic(ctx, recovered)
	}

	// Distributed locks keep coordinator replicas sharing one Redis from
	// running the same maintenance job concurrently. Without Redis the
	// locks degrade to single-instance mode.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	if app.stateRepo != nil && app.config.State.SaveInterval > 0 {
		interval := time.Duration(app.config.State.SaveInterval) * time.Second
		stateSaveLock := autoscaler.NewRedisDistributedLock(redisClient, "jobs:state-save-lock")
		manager.Register(newStateSaveJob(interval, app.clusterMgr, stateSaveLock))
	}

	if app.reaper != nil {
		orphanReapLock := autoscaler.NewRedisDistributedLock(redisClient, "jobs:orphan-reap-lock")
		manager.Register(newOrphanReapJob(app.reaper, orphanReapLock))
	}

	if app.auditStore != nil {
		auditCleanupLock := autoscaler.NewRedisDistributedLock(redisClient, "jobs:audit-cleanup-lock")
		manager.Register(newAuditCleanupJob(24*time.Hour, app.auditStore, auditCleanupLock))
	}

	app.jobsManager = manager
	return nil
}

// stateSaveJob periodically snapshots cluster state to Redis so a
// restarted coordinator can restore its configuration and worker layout.
type stateSaveJob struct {
	interval        time.Duration
	cluster         *cluster.Manager
	distributedLock autoscaler.DistributedLock
}

func newStateSaveJob(interval time.Duration, mgr *cluster.Manager, lock autoscaler.DistributedLock) jobs.Job {
	return &stateSaveJob{
		interval:        interval,
		cluster:         mgr,
		distributedLock: lock,
	}
}

func (j *stateSaveJob) Name() string {
	return "state-save"
}

func (j *stateSaveJob) Interval() time.Duration {
	return j.interval
}

func (j *stateSaveJob) Run(ctx context.Context) error {
	if j.cluster == nil {
		return fmt.Errorf("cluster manager not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is saving cluster state, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	logger.DebugCtx(ctx, "running periodic state save")
	return j.cluster.SaveState(ctx)
}

// orphanReapJob scans the durable PID registry for worker processes the
// coordinator no longer manages and terminates them.
type orphanReapJob struct {
	reaper          *resource.Reaper
	distributedLock autoscaler.DistributedLock
}

func newOrphanReapJob(reaper *resource.Reaper, lock autoscaler.DistributedLock) jobs.Job {
	return &orphanReapJob{
		reaper:          reaper,
		distributedLock: lock,
	}
}

func (j *orphanReapJob) Name() string {
	return "orphan-reap"
}

func (j *orphanReapJob) Interval() time.Duration {
	return j.reaper.GetConfig().CheckInterval
}

func (j *orphanReapJob) Run(ctx context.Context) error {
	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is reaping orphans, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	j.reaper.CheckAndReap(ctx)
	return nil
}

// auditCleanupJob deletes audit rows older than the retention window.
type auditCleanupJob struct {
	interval        time.Duration
	audit           *mysqlstore.AuditStore
	distributedLock autoscaler.DistributedLock
}

func newAuditCleanupJob(interval time.Duration, audit *mysqlstore.AuditStore, lock autoscaler.DistributedLock) jobs.Job {
	return &auditCleanupJob{
		interval:        interval,
		audit:           audit,
		distributedLock: lock,
	}
}

func (j *auditCleanupJob) Name() string {
	return "audit-cleanup"
}

func (j *auditCleanupJob) Interval() time.Duration {
	return j.interval
}

// AlignToInterval runs the cleanup at interval boundaries so daily runs
// land at midnight rather than at process start time.
func (j *auditCleanupJob) AlignToInterval() bool {
	return true
}

func (j *auditCleanupJob) Run(ctx context.Context) error {
	if j.audit == nil {
		return fmt.Errorf("audit store not configured")
	}

	if j.distributedLock != nil {
		acquired, err := j.distributedLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is cleaning the audit trail, skipping this cycle")
			return nil
		}
		defer j.distributedLock.Unlock(ctx)
	}

	deleted, err := j.audit.Cleanup(ctx, auditRetention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.InfoCtx(ctx, "audit cleanup removed %d expired rows", deleted)
	}
	return nil
}

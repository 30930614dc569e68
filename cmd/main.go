package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/capacity"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/worker"
)

func main() {
	// The coordinator re-executes its own binary with the worker
	// subcommand to fork worker processes.
	if len(os.Args) > 1 && os.Args[1] == constants.WorkerSubcommand {
		runWorker(os.Args[2:])
		return
	}

	// Create application instance
	app := NewApplication()

	// Initialize all components
	if err := app.Initialize(); err != nil {
		logger.FatalCtx(nil, "Application initialization failed: %v", err)
	}

	// Start all components
	if err := app.Start(); err != nil {
		logger.FatalCtx(app.ctx, "Application startup failed: %v", err)
	}

	// Wait for exit signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.InfoCtx(app.ctx, "Received exit signal: %v", sig)

	// Graceful shutdown (30 seconds timeout)
	if err := app.Shutdown(30 * time.Second); err != nil {
		logger.ErrorCtx(app.ctx, "Application shutdown failed: %v", err)
		os.Exit(1)
	}

	logger.InfoCtx(app.ctx, "Application safely exited")
}

// runWorker is the entry point of a forked worker process. It parses the
// spawn spec from the argument list, dials back to the coordinator, and
// serves dispatched tasks until told to shut down.
func runWorker(args []string) {
	spec, err := worker.ParseSpawnSpec(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid worker invocation: %v\n", err)
		os.Exit(2)
	}

	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "worker %s: config load failed: %v\n", spec.WorkerID, err)
		os.Exit(1)
	}
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "worker %s: logger init failed: %v\n", spec.WorkerID, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The runtime reports memory usage as a fraction of host memory.
	var totalMemory uint64
	if hc, err := capacity.NewLocalProvider().Capacity(ctx); err == nil {
		totalMemory = hc.MemoryBytes
	} else {
		logger.WarnCtx(ctx, "worker %s: host capacity probe failed: %v", spec.WorkerID, err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.InfoCtx(ctx, "worker %s received signal %v, shutting down", spec.WorkerID, sig)
		cancel()
	}()

	runtime := worker.NewRuntime(spec, totalMemory, nil)
	if err := runtime.Run(ctx); err != nil {
		logger.ErrorCtx(ctx, "worker %s exited with error: %v", spec.WorkerID, err)
		os.Exit(1)
	}
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/constants"
)

// Process is a spawned worker process handle. It never leaks past the
// worker package boundary; the registry exposes only opaque worker ids.
type Process interface {
	PID() int
	Kill() error
	// Done is closed (with the exit error, if any) when the process exits.
	Done() <-chan error
}

// Driver spawns worker processes. The default driver self-executes the
// coordinator binary with the worker subcommand; deployments with a
// dedicated worker binary configure cluster.worker.command instead.
type Driver interface {
	Spawn(ctx context.Context, spec *model.SpawnSpec) (Process, error)
}

// ExecDriver forks OS child processes via os/exec. Worker identity
// travels as the JSON spawn spec argument, never through inherited
// environment variables.
type ExecDriver struct {
	cfg config.WorkerSpawnConfig
}

// NewExecDriver creates the process driver from the spawn configuration.
func NewExecDriver(cfg config.WorkerSpawnConfig) *ExecDriver {
	return &ExecDriver{cfg: cfg}
}

func (d *ExecDriver) Spawn(ctx context.Context, spec *model.SpawnSpec) (Process, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode spawn spec: %w", err)
	}

	command := d.cfg.Command
	var args []string
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve own binary: %w", err)
		}
		command = self
		args = []string{constants.WorkerSubcommand, constants.WorkerSpecFlag, string(specJSON)}
	} else {
		args = append(append([]string{}, d.cfg.Args...), constants.WorkerSpecFlag, string(specJSON))
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range d.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn worker process: %w", err)
	}

	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		p.done <- err
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan error {
	return p.done
}

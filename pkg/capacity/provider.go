package capacity

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/interfaces"
)

const memInfoPath = "/proc/meminfo"

// LocalProvider reads capacity from the host: CPU count from the runtime,
// total memory from /proc/meminfo. On hosts without /proc the memory
// reading degrades to zero and callers fall back to CPU-only sizing.
type LocalProvider struct {
	memInfoPath string
}

// NewLocalProvider creates the host capacity provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{memInfoPath: memInfoPath}
}

func (p *LocalProvider) Capacity(ctx context.Context) (*interfaces.HostCapacity, error) {
	mem, err := readMemTotal(p.memInfoPath)
	if err != nil {
		mem = 0
	}
	return &interfaces.HostCapacity{
		CPUCount:    runtime.NumCPU(),
		MemoryBytes: mem,
	}, nil
}

// readMemTotal parses the MemTotal line of /proc/meminfo (kB).
func readMemTotal(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}

// StaticProvider reports fixed capacity. Used in tests and when the
// deployment pins capacity through configuration.
type StaticProvider struct {
	CPUs   int
	Memory uint64
}

func (p *StaticProvider) Capacity(ctx context.Context) (*interfaces.HostCapacity, error) {
	return &interfaces.HostCapacity{CPUCount: p.CPUs, MemoryBytes: p.Memory}, nil
}

// RecommendedWorkers sizes an "auto" worker count from host capacity:
// one worker per CPU, clamped to [min, max]. Zero bounds are ignored.
func RecommendedWorkers(hc *interfaces.HostCapacity, min, max int) int {
	n := hc.CPUCount
	if n < 1 {
		n = 1
	}
	if min > 0 && n < min {
		n = min
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

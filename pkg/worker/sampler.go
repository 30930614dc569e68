package worker

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// Sampler measures this process's own resource usage. CPU comes from
// rusage deltas between samples, memory from the Go runtime's view of
// OS-obtained bytes. Each worker runs one sampler and reports the
// readings upstream in its heartbeats.
type Sampler struct {
	mu          sync.Mutex
	lastCPUTime time.Duration
	lastWall    time.Time
	totalMemory uint64 // host total; zero disables the percent reading
}

// NewSampler creates a sampler. totalMemory of zero leaves memory
// percent at zero.
func NewSampler(totalMemory uint64) *Sampler {
	return &Sampler{
		lastCPUTime: processCPUTime(),
		lastWall:    time.Now(),
		totalMemory: totalMemory,
	}
}

// Sample returns CPU usage percent since the previous sample plus the
// current memory footprint.
func (s *Sampler) Sample() (cpuPercent float64, memoryBytes uint64, memoryPercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cpu := processCPUTime()

	wall := now.Sub(s.lastWall)
	if wall > 0 {
		cpuPercent = float64(cpu-s.lastCPUTime) / float64(wall) * 100
		if cpuPercent < 0 {
			cpuPercent = 0
		}
		if cpuPercent > 100 {
			cpuPercent = 100
		}
	}
	s.lastCPUTime = cpu
	s.lastWall = now

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	memoryBytes = ms.Sys
	if s.totalMemory > 0 {
		memoryPercent = float64(memoryBytes) / float64(s.totalMemory) * 100
	}
	return cpuPercent, memoryBytes, memoryPercent
}

func processCPUTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return timevalDuration(ru.Utime) + timevalDuration(ru.Stime)
}

func timevalDuration(tv syscall.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickJob struct {
	name     string
	interval time.Duration
	runs     atomic.Int64
	fail     bool
	panics   bool
	aligned  bool
}

func (j *tickJob) Name() string { return j.name }
func (j *tickJob) Interval() time.Duration { return j.interval }
func (j *tickJob) AlignToInterval() bool { return j.aligned }

func (j *tickJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panics {
		panic("job blew up")
	}
	if j.fail {
		return fmt.Errorf("transient failure")
	}
	return nil
}

func TestJobRunsImmediatelyThenOnInterval(t *testing.T) {
	m := NewManager(context.Background())
	job := &tickJob{name: "tick", interval: 20 * time.Millisecond}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	require.Eventually(t, func() bool { return job.runs.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestFailingJobKeepsTicking(t *testing.T) {
	m := NewManager(context.Background())
	job := &tickJob{name: "flaky", interval: 20 * time.Millisecond, fail: true}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestPanickingJobIsContained(t *testing.T) {
	m := NewManager(context.Background())
	var recovered atomic.Int64
	m.OnPanic = func(ctx context.Context, r interface{}) {
		assert.Equal(t, "job blew up", r)
		recovered.Add(1)
	}
	job := &tickJob{name: "bomb", interval: 20 * time.Millisecond, panics: true}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	// The schedule survives its own panics.
	require.Eventually(t, func() bool { return recovered.Load() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestAlignedJobHoldsFirstRun(t *testing.T) {
	m := NewManager(context.Background())
	job := &tickJob{name: "aligned", interval: time.Hour, aligned: true}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, job.runs.Load())
}

func TestStopEndsSchedules(t *testing.T) {
	m := NewManager(context.Background())
	job := &tickJob{name: "tick", interval: 10 * time.Millisecond}
	m.Register(job)
	m.Start()

	require.Eventually(t, func() bool { return job.runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)

	m.Stop()
	m.Wait()
	after := job.runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, job.runs.Load())
}

func TestNilJobIgnored(t *testing.T) {
	m := NewManager(context.Background())
	m.Register(nil)
	m.Start()
	m.Stop()
	m.Wait()
}

func TestStartIsIdempotent(t *testing.T) {
	m := NewManager(context.Background())
	job := &tickJob{name: "tick", interval: time.Hour}
	m.Register(job)
	m.Start()
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	require.Eventually(t, func() bool { return job.runs.Load() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, job.runs.Load())
}

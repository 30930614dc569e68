package resource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// reapScenario is one randomly generated host state: some recorded PIDs
// belong to managed workers, some are orphans, some are already dead.
type reapScenario struct {
	managed    []int // recorded, in the registry, alive
	orphans    []int // recorded, not in the registry, alive
	deadOrphan []int // recorded, not in the registry, already dead
}

func genReapScenario() gopter.Gen {
	pidList := func(lo int) gopter.Gen {
		return gen.SliceOfN(3, gen.IntRange(lo, lo+999)).Map(func(pids []int) []int {
			seen := make(map[int]bool)
			out := pids[:0]
			for _, p := range pids {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
			return out
		})
	}
	return gopter.CombineGens(pidList(10000), pidList(20000), pidList(30000)).Map(func(vals []interface{}) reapScenario {
		return reapScenario{
			managed:    vals[0].([]int),
			orphans:    vals[1].([]int),
			deadOrphan: vals[2].([]int),
		}
	})
}

func buildScenario(s reapScenario) (*stubRegistry, *stubProvider, *fakeHost) {
	registry := newStubRegistry()
	provider := &stubProvider{workers: make(map[string]*model.Worker)}
	host := newFakeHost()

	for _, pid := range s.managed {
		id := fmt.Sprintf("managed-%d", pid)
		registry.record(id, pid)
		provider.workers[id] = &model.Worker{ID: id, PID: pid}
		host.alive[pid] = true
	}
	for _, pid := range s.orphans {
		registry.record(fmt.Sprintf("orphan-%d", pid), pid)
		host.alive[pid] = true
	}
	for _, pid := range s.deadOrphan {
		registry.record(fmt.Sprintf("dead-%d", pid), pid)
	}
	return registry, provider, host
}

func TestPropertyReaper(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("managed workers never receive a signal", prop.ForAll(
		func(s reapScenario) bool {
			registry, provider, host := buildScenario(s)
			r := newTestReaper(registry, provider, host)

			for i := 0; i < 3; i++ {
				r.CheckAndReap(context.Background())
				time.Sleep(12 * time.Millisecond)
			}

			for _, pid := range s.managed {
				if len(host.sentSignals(pid)) != 0 || !host.isAlive(pid) {
					return false
				}
			}
			return true
		},
		genReapScenario(),
	))

	properties.Property("repeated scans leave no live orphan and no stale record", prop.ForAll(
		func(s reapScenario) bool {
			registry, provider, host := buildScenario(s)
			r := newTestReaper(registry, provider, host)

			// TERM scan, KILL scan after grace, forget scan.
			for i := 0; i < 3; i++ {
				r.CheckAndReap(context.Background())
				time.Sleep(12 * time.Millisecond)
			}

			for _, pid := range s.orphans {
				if host.isAlive(pid) {
					return false
				}
				if registry.has(fmt.Sprintf("orphan-%d", pid)) {
					return false
				}
			}
			for _, pid := range s.deadOrphan {
				if registry.has(fmt.Sprintf("dead-%d", pid)) {
					return false
				}
			}
			return true
		},
		genReapScenario(),
	))

	properties.Property("a scan over managed workers only is a no-op", prop.ForAll(
		func(s reapScenario) bool {
			s.orphans = nil
			s.deadOrphan = nil
			registry, provider, host := buildScenario(s)
			r := newTestReaper(registry, provider, host)

			r.CheckAndReap(context.Background())
			r.CheckAndReap(context.Background())

			recorded, err := registry.WorkerPIDs(context.Background())
			if err != nil {
				return false
			}
			return len(recorded) == len(s.managed) && r.TrackedOrphanCount() == 0
		},
		genReapScenario(),
	))

	properties.TestingRun(t)
}

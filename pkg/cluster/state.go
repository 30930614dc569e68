package cluster

import (
	"fmt"
	"sync"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
)

// transitions lists the legal next states for each state. The error state
// is reachable from anywhere and is therefore not listed per source.
var transitions = map[model.ClusterState][]model.ClusterState{
	model.StateInitializing: {model.StateStarting},
	model.StateStarting:     {model.StateRunning, model.StateDegraded, model.StateStopping},
	model.StateRunning:      {model.StatePaused, model.StateDegraded, model.StateStopping, model.StateStopped},
	model.StatePaused:       {model.StateRunning, model.StateStopping},
	model.StateDegraded:     {model.StateRunning, model.StatePaused, model.StateStopping, model.StateStopped},
	model.StateStopping:     {model.StateStopped},
	model.StateStopped:      {model.StateStarting},
	model.StateError:        {model.StateStarting, model.StateStopping, model.StateStopped},
}

// stateMachine guards the cluster lifecycle state and validates every
// transition against the table above.
type stateMachine struct {
	mu    sync.RWMutex
	state model.ClusterState
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: model.StateInitializing}
}

// Current returns the present state.
func (s *stateMachine) Current() model.ClusterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves to the target state, failing on an illegal edge.
// Transitioning to the current state is a no-op.
func (s *stateMachine) Transition(to model.ClusterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == to {
		return nil
	}
	if to == model.StateError {
		s.state = to
		return nil
	}
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return E(CodeTransition, "transition", SeverityHigh,
		fmt.Errorf("illegal state transition %s -> %s", s.state, to))
}

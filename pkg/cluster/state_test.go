package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEHONIX/FortifyJS-sub002/internal/model"
	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
)

func TestLifecyclePath(t *testing.T) {
	m := newStateMachine()
	assert.Equal(t, model.StateInitializing, m.Current())

	for _, next := range []model.ClusterState{
		model.StateStarting,
		model.StateRunning,
		model.StatePaused,
		model.StateRunning,
		model.StateDegraded,
		model.StateRunning,
		model.StateStopping,
		model.StateStopped,
	} {
		require.NoError(t, m.Transition(next))
		assert.Equal(t, next, m.Current())
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := newStateMachine()
	err := m.Transition(model.StateRunning)
	require.Error(t, err)
	assert.Equal(t, model.StateInitializing, m.Current(), "state unchanged on rejection")

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, CodeTransition, cerr.Code)
}

func TestSameStateIsNoOp(t *testing.T) {
	m := newStateMachine()
	require.NoError(t, m.Transition(model.StateStarting))
	assert.NoError(t, m.Transition(model.StateStarting))
}

func TestErrorReachableFromAnywhere(t *testing.T) {
	m := newStateMachine()
	require.NoError(t, m.Transition(model.StateStarting))
	require.NoError(t, m.Transition(model.StateRunning))
	require.NoError(t, m.Transition(model.StateError))
	assert.Equal(t, model.StateError, m.Current())

	// And a restart is possible out of error.
	require.NoError(t, m.Transition(model.StateStarting))
}

func TestStoppedClusterCanRestart(t *testing.T) {
	m := newStateMachine()
	require.NoError(t, m.Transition(model.StateStarting))
	require.NoError(t, m.Transition(model.StateRunning))
	require.NoError(t, m.Transition(model.StateStopping))
	require.NoError(t, m.Transition(model.StateStopped))
	require.NoError(t, m.Transition(model.StateStarting))
}

func TestTypedErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := E(CodeWorker, "start", SeverityMedium, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "worker/start")
	assert.Contains(t, err.Error(), "medium")
}

func TestExportConfigurationMasksSecrets(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Redis.Password = "red-secret"
	cfg.MySQL.Password = "sql-secret"
	cfg.Server.APIKey = "key-secret"
	cfg.Notification.WebhookURL = "https://hooks.example.com/t0k3n"

	m := NewManager(cfg, Deps{})
	out, err := m.ExportConfiguration()
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "red-secret")
	assert.NotContains(t, s, "sql-secret")
	assert.NotContains(t, s, "key-secret")
	assert.NotContains(t, s, "t0k3n")
	assert.Contains(t, s, "******")

	// Masking must not leak back into the live config.
	assert.Equal(t, "red-secret", cfg.Redis.Password)
}

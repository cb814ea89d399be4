package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

func allStates() []State {
	return []State{
		StateCreated, StateRunning, StateStepPending, StateStepComplete,
		StateCompleted, StateCompensating, StateCompensationComplete,
		StateFailed, StateTimedOut,
	}
}

func TestTransitionMatrix(t *testing.T) {
	t.Parallel()

	for from, allowed := range validTransitions {
		allowedSet := make(map[State]bool, len(allowed))
		for _, s := range allowed {
			allowedSet[s] = true
		}
		for _, to := range allStates() {
			in := newInstance(Definition{Name: "t"}, nil, nil)
			in.state = from
			err := in.transition(to)
			if allowedSet[to] {
				require.NoError(t, err, "%s to %s should be allowed", from, to)
				require.Equal(t, to, in.state)
			} else {
				require.Error(t, err, "%s to %s should be rejected", from, to)
				require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
				require.Equal(t, from, in.state, "state must not change on rejection")
			}
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	t.Parallel()

	for _, terminal := range []State{StateCompleted, StateFailed, StateTimedOut} {
		require.True(t, terminal.Terminal())
		for _, to := range allStates() {
			in := newInstance(Definition{Name: "t"}, nil, nil)
			in.state = terminal
			require.Error(t, in.transition(to), "%s to %s must be rejected", terminal, to)
		}
	}
	require.False(t, StateRunning.Terminal())
	require.False(t, StateCompensating.Terminal())
}

func TestTransition_TerminalSetsCompletedAt(t *testing.T) {
	t.Parallel()

	in := newInstance(Definition{Name: "t"}, nil, nil)
	require.NoError(t, in.transition(StateRunning))
	require.Nil(t, in.completedAt)

	require.NoError(t, in.transition(StateCompleted))
	require.NotNil(t, in.completedAt)

	snap := in.snapshot()
	require.NotNil(t, snap.CompletedAt)
	require.GreaterOrEqual(t, snap.DurationMs, int64(0))
}

func TestInstance_TimedOut(t *testing.T) {
	t.Parallel()

	in := newInstance(Definition{Name: "t", Timeout: time.Hour}, nil, nil)
	require.False(t, in.timedOut())

	in.startedAt = time.Now().Add(-2 * time.Hour)
	require.True(t, in.timedOut())
}

func TestSnapshot_IsolatedFromInstance(t *testing.T) {
	t.Parallel()

	in := newInstance(Definition{
		Name:  "t",
		Steps: []Step{{Name: "a"}, {Name: "b"}},
	}, map[string]any{"k": "v"}, nil)
	in.recordStepResult("a", 1)

	snap := in.snapshot()
	require.Equal(t, []string{"a"}, snap.CompletedSteps)
	require.Equal(t, 2, snap.TotalSteps)

	in.recordStepResult("b", 2)
	require.Equal(t, []string{"a"}, snap.CompletedSteps)
	require.NotContains(t, snap.StepResults, "b")
}

func TestInstance_LogCapturesTransitions(t *testing.T) {
	t.Parallel()

	in := newInstance(Definition{Name: "t"}, nil, nil)
	require.NoError(t, in.transition(StateRunning))
	in.setStep(1)
	in.addLog("executing step")

	snap := in.snapshot()
	require.Len(t, snap.Log, 2)
	require.Contains(t, snap.Log[0].Message, "CREATED to RUNNING")
	require.Equal(t, 1, snap.Log[1].Step)
}

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/models"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	RoomStateBase
	OnEnterCalled bool
	OnExitCalled  bool
	enter         func()
}

func newMockState(id models.Phase) *MockState {
	return &MockState{RoomStateBase: RoomStateBase{ID: id}}
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
	if m.enter != nil {
		m.enter()
	}
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := newMockState(models.PhaseWaiting)
	sm := NewBaseStateMachine(initialState)

	assert.True(t, initialState.OnEnterCalled, "OnEnter should run for the initial state")
	assert.Equal(t, initialState, sm.GetCurrentState())
	assert.Equal(t, uint64(1), sm.Generation())
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := newMockState(models.PhaseWaiting)
	nextState := newMockState(models.PhaseCountdown)

	sm := NewBaseStateMachine(initialState)
	initialState.reset()

	require.NoError(t, sm.ChangeState(nextState))
	assert.True(t, initialState.OnExitCalled)
	assert.True(t, nextState.OnEnterCalled)
	assert.Equal(t, nextState, sm.GetCurrentState())
	assert.Equal(t, uint64(2), sm.Generation())
}

func TestStateMachine_RegisteredTransitions(t *testing.T) {
	sm := NewBaseStateMachine(newMockState(models.PhaseWaiting))
	RegisterTransitions(sm)

	err := sm.ChangeState(newMockState(models.PhaseInput))
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, models.PhaseWaiting, sm.GetCurrentState().GetID())
	assert.Equal(t, uint64(1), sm.Generation(), "a rejected transition must not bump the generation")

	require.NoError(t, sm.ChangeState(newMockState(models.PhaseCountdown)))
	assert.Equal(t, models.PhaseCountdown, sm.GetCurrentState().GetID())
}

func TestStateMachine_TransitionCondition(t *testing.T) {
	sm := NewBaseStateMachine(newMockState(models.PhaseWaiting))
	open := false
	sm.AddTransition(models.PhaseWaiting, models.PhaseCountdown, func() bool { return open })

	assert.ErrorIs(t, sm.ChangeState(newMockState(models.PhaseCountdown)), ErrTransitionNotAllowed)
	open = true
	assert.NoError(t, sm.ChangeState(newMockState(models.PhaseCountdown)))
}

func TestStateMachine_ChangeFromOnEnterIsQueued(t *testing.T) {
	sm := NewBaseStateMachine(newMockState(models.PhaseWaiting))
	RegisterTransitions(sm)

	var order []models.Phase
	sm.OnChange(func(from, to State) {
		order = append(order, to.GetID())
	})

	showing := newMockState(models.PhaseShowingSequence)
	countdown := newMockState(models.PhaseCountdown)
	countdown.enter = func() {
		// Still inside the countdown transition.
		assert.Equal(t, countdown, sm.GetCurrentState())
		require.NoError(t, sm.ChangeState(showing))
		assert.Equal(t, countdown, sm.GetCurrentState())
	}

	require.NoError(t, sm.ChangeState(countdown))
	assert.Equal(t, showing, sm.GetCurrentState())
	assert.True(t, countdown.OnExitCalled)
	assert.Equal(t, []models.Phase{models.PhaseCountdown, models.PhaseShowingSequence}, order)
	assert.Equal(t, uint64(3), sm.Generation())
}

func TestStateMachine_QueuedIllegalTransitionIsDropped(t *testing.T) {
	sm := NewBaseStateMachine(newMockState(models.PhaseWaiting))
	RegisterTransitions(sm)

	countdown := newMockState(models.PhaseCountdown)
	countdown.enter = func() {
		_ = sm.ChangeState(newMockState(models.PhaseGameOver))
	}

	require.NoError(t, sm.ChangeState(countdown))
	assert.Equal(t, countdown, sm.GetCurrentState())
}

func TestRoomStateBase_Defaults(t *testing.T) {
	s := newMockState(models.PhaseScoring)
	assert.Equal(t, models.PhaseScoring, s.GetID())
	assert.ErrorIs(t, s.HandleAction(&models.Player{ID: "p"}, Action{Type: ActionStartGame}), models.ErrWrongPhase)
}

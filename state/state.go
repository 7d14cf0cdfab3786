package state

import (
	"errors"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from, to models.Phase, condition func() bool)
	Generation() uint64
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() models.Phase
	HandleAction(player *models.Player, action Action) error
	// OnPlayersChanged is called after a join, leave, disconnect or reconnect.
	OnPlayersChanged()
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine runs on the owning room's loop and is not locked.
// A ChangeState issued from inside OnEnter/OnExit is queued and applied
// once the current transition finishes.
type BaseStateMachine struct {
	currentState  State
	transitions   map[models.Phase]map[models.Phase]func() bool
	generation    uint64
	transitioning bool
	pending       []State
	onChange      func(from, to State)
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Phase]map[models.Phase]func() bool),
		generation:   1,
	}
	machine.transitioning = true
	initialState.OnEnter()
	machine.transitioning = false
	machine.drain()
	return machine
}

// OnChange registers a hook called after every completed transition.
func (sm *BaseStateMachine) OnChange(fn func(from, to State)) {
	sm.onChange = fn
}

// AddTransition whitelists from -> to. Once any transition is registered
// for a phase, unregistered targets from that phase are rejected.
func (sm *BaseStateMachine) AddTransition(from, to models.Phase, condition func() bool) {
	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[models.Phase]func() bool)
	}
	sm.transitions[from][to] = condition
}

func (sm *BaseStateMachine) allowed(from, to models.Phase) bool {
	conditions, exists := sm.transitions[from]
	if !exists {
		return true
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	if sm.transitioning {
		sm.pending = append(sm.pending, newState)
		return nil
	}
	if err := sm.apply(newState); err != nil {
		return err
	}
	sm.drain()
	return nil
}

func (sm *BaseStateMachine) apply(newState State) error {
	if !sm.allowed(sm.currentState.GetID(), newState.GetID()) {
		return ErrTransitionNotAllowed
	}

	sm.transitioning = true
	old := sm.currentState
	old.OnExit()
	sm.generation++
	sm.currentState = newState
	newState.OnEnter()
	sm.transitioning = false

	if sm.onChange != nil {
		sm.onChange(old, newState)
	}
	return nil
}

func (sm *BaseStateMachine) drain() {
	for len(sm.pending) > 0 {
		next := sm.pending[0]
		sm.pending = sm.pending[1:]
		from := sm.currentState.GetID()
		if err := sm.apply(next); err != nil {
			logger.Log.Errorf("queued transition %s -> %s dropped: %v", from, next.GetID(), err)
		}
	}
}

func (sm *BaseStateMachine) GetCurrentState() State {
	return sm.currentState
}

// Generation increases on every transition. Timer callbacks stamped with an
// older generation belong to a superseded phase.
func (sm *BaseStateMachine) Generation() uint64 {
	return sm.generation
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   models.Phase
	Room RoomContext
}

func (s *RoomStateBase) GetID() models.Phase {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) OnPlayersChanged() {}

func (s *RoomStateBase) HandleAction(player *models.Player, action Action) error {
	return models.ErrWrongPhase
}

// RegisterTransitions installs the legal phase graph on sm.
func RegisterTransitions(sm StateMachine) {
	sm.AddTransition(models.PhaseWaiting, models.PhaseCountdown, nil)
	sm.AddTransition(models.PhaseCountdown, models.PhaseShowingSequence, nil)
	sm.AddTransition(models.PhaseShowingSequence, models.PhaseInput, nil)
	sm.AddTransition(models.PhaseInput, models.PhaseScoring, nil)
	sm.AddTransition(models.PhaseScoring, models.PhaseShowingSequence, nil)
	sm.AddTransition(models.PhaseScoring, models.PhaseGameOver, nil)
	sm.AddTransition(models.PhaseGameOver, models.PhaseWaiting, nil)
}

package state

import (
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
)

// CountdownState ticks from Settings.CountdownFrom down to 0, then starts
// round 1.
type CountdownState struct {
	RoomStateBase
	count   int
	timerID int64
}

func NewCountdownState(room RoomContext) *CountdownState {
	return &CountdownState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseCountdown,
			Room: room,
		},
	}
}

func (s *CountdownState) OnEnter() {
	game := s.Room.Game()
	game.StartedWith = len(s.Room.GetPlayers())
	game.StartedAt = s.Room.Now()

	s.count = s.Room.GetSettings().CountdownFrom
	if s.count < 0 {
		s.count = 0
	}
	s.broadcast()
}

func (s *CountdownState) OnExit() {
	s.Room.CancelTimer(s.timerID)
}

func (s *CountdownState) broadcast() {
	s.Room.Broadcast(network.EventCountdown, network.CountdownPayload{Count: s.count})
	if s.count == 0 {
		_ = s.Room.ChangeState(NewShowingSequenceState(s.Room, 1))
		return
	}
	s.timerID = s.Room.Schedule(s.Room.GetSettings().CountdownInterval, s.tick)
}

func (s *CountdownState) tick() {
	s.count--
	s.broadcast()
}

// Count is the value last broadcast.
func (s *CountdownState) Count() int {
	return s.count
}

func (s *CountdownState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionSubmitColor, ActionSubmitSequence:
		return models.ErrInputClosed
	case ActionStartGame:
		return models.ErrGameInProgress
	default:
		return models.ErrWrongPhase
	}
}

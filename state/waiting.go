package state

import (
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
)

// NewWaitingState creates a new waiting state.
func NewWaitingState(room RoomContext) *WaitingState {
	return &WaitingState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseWaiting,
			Room: room,
		},
	}
}

// 等待状态：房主开始游戏前
type WaitingState struct {
	RoomStateBase
}

// OnEnter leaves the room exactly as a fresh room with the same members.
func (s *WaitingState) OnEnter() {
	s.Room.Game().Reset()
	s.Room.Scores().Reset()
}

func (s *WaitingState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionStartGame:
		if !player.IsHost {
			return models.ErrNotHost
		}
		if len(s.Room.GetPlayers()) == 0 {
			return models.ErrWrongPhase
		}
		logger.Log.Infof("room %s: game started by %s with %d players", s.Room.GetID(), player.ID, len(s.Room.GetPlayers()))
		return s.Room.ChangeState(NewCountdownState(s.Room))
	case ActionSubmitColor, ActionSubmitSequence:
		return models.ErrInputClosed
	default:
		return models.ErrWrongPhase
	}
}

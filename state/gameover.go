package state

import (
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
)

// 游戏结束状态：等待房主重开
type GameOverState struct {
	RoomStateBase
	result models.GameResult
}

func NewGameOverState(room RoomContext) *GameOverState {
	return &GameOverState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseGameOver,
			Room: room,
		},
	}
}

func (s *GameOverState) OnEnter() {
	game := s.Room.Game()
	standings := s.Room.Scores().Standings()

	s.result = models.GameResult{
		RoomCode:     s.Room.GetID(),
		Winner:       Winner(standings, game.Solo()),
		Standings:    standings,
		RoundsPlayed: game.Round,
		Solo:         game.Solo(),
		StartedAt:    game.StartedAt,
		FinishedAt:   s.Room.Now(),
	}

	s.Room.Broadcast(network.EventGameOver, network.GameOverPayload{
		Winner:       s.result.Winner,
		Standings:    standings,
		RoundsPlayed: game.Round,
	})
	if s.result.Winner != nil {
		logger.Log.Infof("room %s: game over after %d rounds, winner %s", s.Room.GetID(), game.Round, s.result.Winner.PlayerID)
	} else {
		logger.Log.Infof("room %s: game over after %d rounds, no winner", s.Room.GetID(), game.Round)
	}
	s.Room.GameFinished(s.result)
}

// Result is the outcome computed on entry.
func (s *GameOverState) Result() models.GameResult {
	return s.result
}

func (s *GameOverState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionRestartGame:
		if !player.IsHost {
			return models.ErrNotHost
		}
		if err := s.Room.ChangeState(NewWaitingState(s.Room)); err != nil {
			return err
		}
		s.Room.Broadcast(network.EventGameRestarted, network.GameRestartedPayload{GameCode: s.Room.GetID()})
		logger.Log.Infof("room %s: restarted by %s", s.Room.GetID(), player.ID)
		return nil
	case ActionSubmitColor, ActionSubmitSequence:
		return models.ErrInputClosed
	default:
		return models.ErrWrongPhase
	}
}

// Winner picks the winner from ordered standings. A solo game has none.
// Otherwise the leader wins only with a strictly higher score than the
// runner-up; a multiplayer game that shrank to one player is won by it.
func Winner(standings []models.Standing, solo bool) *models.Standing {
	if solo || len(standings) == 0 {
		return nil
	}
	top := standings[0]
	if len(standings) > 1 && standings[1].Score >= top.Score {
		return nil
	}
	return &top
}

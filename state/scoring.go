package state

import (
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
)

// ScoringState publishes the round result and decides between the next
// round and game over.
type ScoringState struct {
	RoomStateBase
	timerID int64
}

func NewScoringState(room RoomContext) *ScoringState {
	return &ScoringState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseScoring,
			Room: room,
		},
	}
}

func (s *ScoringState) OnEnter() {
	game := s.Room.Game()

	results := make([]models.PlayerRoundResult, 0, len(game.Results))
	for _, p := range s.Room.GetPlayers() {
		if r, ok := game.Results[p.ID]; ok {
			r.Score = p.Score
			results = append(results, r)
		}
	}
	s.Room.Broadcast(network.EventRoundResult, network.RoundResultPayload{
		Round:   game.Round,
		Results: results,
		Scores:  s.Room.Scores().Scores(),
	})

	if s.gameOver() {
		_ = s.Room.ChangeState(NewGameOverState(s.Room))
		return
	}
	next := game.Round + 1
	s.timerID = s.Room.Schedule(s.Room.GetSettings().ResultDelay, func() {
		_ = s.Room.ChangeState(NewShowingSequenceState(s.Room, next))
	})
}

func (s *ScoringState) OnExit() {
	s.Room.CancelTimer(s.timerID)
}

// gameOver reports whether the game ends after the current round.
func (s *ScoringState) gameOver() bool {
	game := s.Room.Game()
	settings := s.Room.GetSettings()
	active := len(s.Room.Scores().Active())

	switch {
	case active == 0:
		return true
	case settings.LastSurvivorWins && !game.Solo() && active <= 1:
		return true
	case settings.MaxRounds > 0 && game.Round >= settings.MaxRounds:
		logger.Log.Infof("room %s: round limit %d reached", s.Room.GetID(), settings.MaxRounds)
		return true
	}
	return false
}

func (s *ScoringState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionSubmitColor, ActionSubmitSequence:
		return models.ErrInputClosed
	case ActionStartGame:
		return models.ErrGameInProgress
	default:
		return models.ErrWrongPhase
	}
}

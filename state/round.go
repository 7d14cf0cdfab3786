package state

import (
	"time"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/sequence"
)

// ShowingSequenceState appends one color and lets clients play the sequence
// back. No input is accepted.
type ShowingSequenceState struct {
	RoomStateBase
	round   int
	timerID int64
}

func NewShowingSequenceState(room RoomContext, round int) *ShowingSequenceState {
	return &ShowingSequenceState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseShowingSequence,
			Room: room,
		},
		round: round,
	}
}

func (s *ShowingSequenceState) OnEnter() {
	game := s.Room.Game()
	game.Round = s.round
	for len(game.Sequence) < s.round {
		game.Sequence = sequence.Append(s.Room.Sequencer(), game.Sequence)
	}
	game.resetRound()
	game.Deadline = time.Time{}

	active := s.Room.Scores().Active()
	ids := make([]string, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.ID)
	}

	show := s.Room.GetSettings().ShowDuration(len(game.Sequence))
	s.Room.Broadcast(network.EventRoundStart, network.RoundStartPayload{
		Round:          game.Round,
		Sequence:       game.SequenceCopy(),
		ShowDurationMs: show.Milliseconds(),
		ActivePlayers:  ids,
	})
	logger.Log.Debugf("room %s: round %d showing %d colors", s.Room.GetID(), game.Round, len(game.Sequence))

	s.timerID = s.Room.Schedule(show, func() {
		_ = s.Room.ChangeState(NewInputState(s.Room))
	})
}

func (s *ShowingSequenceState) OnExit() {
	s.Room.CancelTimer(s.timerID)
}

func (s *ShowingSequenceState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionSubmitColor, ActionSubmitSequence:
		return models.ErrInputClosed
	case ActionStartGame:
		return models.ErrGameInProgress
	default:
		return models.ErrWrongPhase
	}
}

// InputState is the timed window in which players reproduce the sequence.
type InputState struct {
	RoomStateBase
	timerID  int64
	finished bool
}

func NewInputState(room RoomContext) *InputState {
	return &InputState{
		RoomStateBase: RoomStateBase{
			ID:   models.PhaseInput,
			Room: room,
		},
	}
}

func (s *InputState) OnEnter() {
	game := s.Room.Game()
	limit := s.Room.GetSettings().InputTimeout(len(game.Sequence))
	game.Deadline = s.Room.Now().Add(limit)

	s.Room.Broadcast(network.EventInputPhase, network.InputPhasePayload{
		Round:       game.Round,
		Deadline:    game.Deadline,
		TimeLimitMs: limit.Milliseconds(),
	})
	s.timerID = s.Room.Schedule(limit, s.finishRound)

	// Everyone may already be gone or disconnected.
	s.checkComplete()
}

func (s *InputState) OnExit() {
	s.Room.CancelTimer(s.timerID)
	s.Room.Game().Deadline = time.Time{}
}

func (s *InputState) OnPlayersChanged() {
	s.checkComplete()
}

func (s *InputState) HandleAction(player *models.Player, action Action) error {
	switch action.Type {
	case ActionSubmitColor:
		if err := s.canSubmit(player); err != nil {
			return err
		}
		c, err := sequence.ParseColor(string(action.Color))
		if err != nil {
			return err
		}
		s.acceptColor(player, c)
	case ActionSubmitSequence:
		if err := s.canSubmit(player); err != nil {
			return err
		}
		answer := make([]models.Color, 0, len(action.Sequence))
		for _, raw := range action.Sequence {
			c, err := sequence.ParseColor(string(raw))
			if err != nil {
				return err
			}
			answer = append(answer, c)
		}
		s.acceptSequence(player, answer)
	case ActionStartGame:
		return models.ErrGameInProgress
	default:
		return models.ErrWrongPhase
	}
	s.checkComplete()
	return nil
}

func (s *InputState) canSubmit(player *models.Player) error {
	if s.finished {
		return models.ErrInputClosed
	}
	if player.IsEliminated {
		return models.ErrPlayerEliminated
	}
	if s.Room.Game().Submitted[player.ID] {
		return models.ErrAlreadySubmitted
	}
	return nil
}

func (s *InputState) acceptColor(player *models.Player, c models.Color) {
	game := s.Room.Game()
	idx := game.progress[player.ID]
	if game.Sequence[idx] != c {
		s.eliminate(player, network.ReasonWrong)
		return
	}
	idx++
	game.progress[player.ID] = idx
	if idx == len(game.Sequence) {
		s.succeed(player)
	}
}

func (s *InputState) acceptSequence(player *models.Player, answer []models.Color) {
	game := s.Room.Game()
	if !sequence.Matches(game.Sequence, answer) {
		s.eliminate(player, network.ReasonWrong)
		return
	}
	game.progress[player.ID] = len(answer)
	s.succeed(player)
}

func (s *InputState) succeed(player *models.Player) {
	game := s.Room.Game()
	score, err := s.Room.Scores().RecordSuccess(player.ID)
	if err != nil {
		logger.Log.Warnf("room %s: record success for %s: %v", s.Room.GetID(), player.ID, err)
		return
	}
	game.Submitted[player.ID] = true
	game.Results[player.ID] = models.PlayerRoundResult{PlayerID: player.ID, Correct: true, Score: score}
	s.Room.Broadcast(network.EventPlayerSubmitted, network.PlayerSubmittedPayload{PlayerID: player.ID, Score: score})
}

func (s *InputState) eliminate(player *models.Player, reason string) {
	game := s.Room.Game()
	if err := s.Room.Scores().RecordElimination(player.ID, game.Round); err != nil {
		logger.Log.Warnf("room %s: eliminate %s: %v", s.Room.GetID(), player.ID, err)
		return
	}
	game.Results[player.ID] = models.PlayerRoundResult{
		PlayerID:   player.ID,
		Eliminated: true,
		Reason:     reason,
		Score:      player.Score,
	}
	s.Room.Broadcast(network.EventPlayerEliminated, network.PlayerEliminatedPayload{
		PlayerID: player.ID,
		Round:    game.Round,
		Reason:   reason,
	})
	logger.Log.Infof("room %s: %s eliminated in round %d (%s)", s.Room.GetID(), player.ID, game.Round, reason)
}

// checkComplete ends the round early once every connected survivor has
// answered. Disconnected players are not waited for.
func (s *InputState) checkComplete() {
	if s.finished {
		return
	}
	game := s.Room.Game()
	for _, p := range s.Room.Scores().Active() {
		if p.Connected && !game.Submitted[p.ID] {
			return
		}
	}
	s.finishRound()
}

// finishRound eliminates every survivor without a complete answer, then
// moves to scoring.
func (s *InputState) finishRound() {
	if s.finished {
		return
	}
	s.finished = true
	s.Room.CancelTimer(s.timerID)

	game := s.Room.Game()
	for _, p := range s.Room.Scores().Active() {
		if game.Submitted[p.ID] {
			continue
		}
		reason := network.ReasonTimeout
		if !p.Connected {
			reason = network.ReasonDisconnected
		}
		s.eliminate(p, reason)
	}
	_ = s.Room.ChangeState(NewScoringState(s.Room))
}

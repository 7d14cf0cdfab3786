package state

import (
	"time"

	"github.com/wfunc/simonserver/models"
)

// Settings are the timing and rule knobs of a room.
type Settings struct {
	MaxPlayers        int
	CountdownFrom     int
	CountdownInterval time.Duration
	ShowColorDuration time.Duration
	ShowPadding       time.Duration
	InputBase         time.Duration
	InputPerColor     time.Duration
	ResultDelay       time.Duration
	MaxRounds         int
	LastSurvivorWins  bool
}

func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:        4,
		CountdownFrom:     3,
		CountdownInterval: time.Second,
		ShowColorDuration: 600 * time.Millisecond,
		ShowPadding:       time.Second,
		InputBase:         5 * time.Second,
		InputPerColor:     time.Second,
		ResultDelay:       3 * time.Second,
	}
}

// ShowDuration is how long the sequence of length n is displayed.
func (s Settings) ShowDuration(n int) time.Duration {
	return time.Duration(n)*s.ShowColorDuration + s.ShowPadding
}

// InputTimeout is the input window for a sequence of length n.
func (s Settings) InputTimeout(n int) time.Duration {
	return s.InputBase + time.Duration(n)*s.InputPerColor
}

// Game is the per-game data shared by the phase states.
type Game struct {
	Round       int
	Sequence    []models.Color
	Submitted   map[string]bool
	Results     map[string]models.PlayerRoundResult
	Deadline    time.Time
	StartedWith int
	StartedAt   time.Time

	progress map[string]int
}

func NewGame() *Game {
	g := &Game{}
	g.Reset()
	return g
}

// Reset returns the game to its pre-start state.
func (g *Game) Reset() {
	g.Round = 0
	g.Sequence = nil
	g.Deadline = time.Time{}
	g.StartedWith = 0
	g.StartedAt = time.Time{}
	g.resetRound()
}

func (g *Game) resetRound() {
	g.Submitted = make(map[string]bool)
	g.Results = make(map[string]models.PlayerRoundResult)
	g.progress = make(map[string]int)
}

// Solo reports whether the game started with a single player.
func (g *Game) Solo() bool {
	return g.StartedWith == 1
}

// SubmittedIDs lists the players that finished this round, in player order.
func (g *Game) SubmittedIDs(players []*models.Player) []string {
	ids := make([]string, 0, len(g.Submitted))
	for _, p := range players {
		if g.Submitted[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// SequenceCopy returns the sequence for broadcasting.
func (g *Game) SequenceCopy() []models.Color {
	out := make([]models.Color, len(g.Sequence))
	copy(out, g.Sequence)
	return out
}

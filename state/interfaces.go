// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/score"
	"github.com/wfunc/simonserver/sequence"
)

// RoomContext defines what a Room must provide to the phase states.
// This breaks the import cycle between room and state. All methods are
// called from the room's own loop.
type RoomContext interface {
	GetID() string
	// GetPlayers returns the live players in join order.
	GetPlayers() []*models.Player
	GetSettings() Settings
	Game() *Game
	Scores() *score.Keeper
	Sequencer() sequence.Generator
	ChangeState(newState State) error
	Broadcast(event string, payload any)
	SendTo(playerID string, event string, payload any)
	// Schedule runs fn on the room loop after delay, unless the phase that
	// scheduled it has been left by then.
	Schedule(delay time.Duration, fn func()) int64
	CancelTimer(id int64)
	Now() time.Time
	GameFinished(result models.GameResult)
}

// Action is an inbound player command.
type Action struct {
	Type     string
	Color    models.Color
	Sequence []models.Color
}

const (
	ActionStartGame      = "start_game"
	ActionSubmitColor    = "submit_color"
	ActionSubmitSequence = "submit_sequence"
	ActionRestartGame    = "restart_game"
)

// models/models.go
package models

import (
	"strings"
	"time"
)

const (
	MaxDisplayNameLength = 12
	DefaultAvatarID      = "1"
)

// RoomStatus is the coarse room status clients render on.
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusCountdown RoomStatus = "countdown"
	StatusActive    RoomStatus = "active"
	StatusGameOver  RoomStatus = "game_over"
)

// Phase is the single discriminated state of a room. Every phase maps to
// exactly one RoomStatus.
type Phase string

const (
	PhaseWaiting         Phase = "waiting"
	PhaseCountdown       Phase = "countdown"
	PhaseShowingSequence Phase = "showing_sequence"
	PhaseInput           Phase = "input"
	PhaseScoring         Phase = "scoring"
	PhaseGameOver        Phase = "game_over"
)

// Status maps a phase onto the room status.
func (p Phase) Status() RoomStatus {
	switch p {
	case PhaseCountdown:
		return StatusCountdown
	case PhaseShowingSequence, PhaseInput, PhaseScoring:
		return StatusActive
	case PhaseGameOver:
		return StatusGameOver
	default:
		return StatusWaiting
	}
}

type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorYellow Color = "yellow"
)

// Player is owned by exactly one room. Score, IsEliminated and
// EliminatedRound are written only by the room's score keeper.
type Player struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	AvatarID        string    `json:"avatarId"`
	IsHost          bool      `json:"isHost"`
	Score           int       `json:"score"`
	IsEliminated    bool      `json:"isEliminated"`
	EliminatedRound int       `json:"eliminatedRound,omitempty"`
	Connected       bool      `json:"connected"`
	JoinedAt        time.Time `json:"joinedAt"`
}

// NewPlayer validates the cosmetic fields supplied at join time.
func NewPlayer(id, displayName, avatarID string) (*Player, error) {
	name := strings.TrimSpace(displayName)
	if id == "" || name == "" || len([]rune(name)) > MaxDisplayNameLength {
		return nil, ErrInvalidName
	}
	avatar := strings.TrimSpace(avatarID)
	if avatar == "" {
		avatar = DefaultAvatarID
	}
	return &Player{
		ID:          id,
		DisplayName: name,
		AvatarID:    avatar,
		JoinedAt:    time.Now(),
	}, nil
}

// Clone returns a copy safe to hand outside the room loop.
func (p *Player) Clone() Player {
	return *p
}

// RoomSnapshot is the full room view sent as room_state and room_state_update.
type RoomSnapshot struct {
	Code             string     `json:"code"`
	Status           RoomStatus `json:"status"`
	Phase            Phase      `json:"phase"`
	HostPlayerID     string     `json:"hostPlayerId"`
	Players          []Player   `json:"players"`
	CurrentRound     int        `json:"currentRound"`
	Sequence         []Color    `json:"sequence"`
	SubmittedPlayers []string   `json:"submittedPlayers"`
	RoundDeadline    *time.Time `json:"roundDeadline,omitempty"`
	MaxPlayers       int        `json:"maxPlayers"`
}

// Standing is one row of the final leaderboard.
type Standing struct {
	Rank            int    `json:"rank"`
	PlayerID        string `json:"playerId"`
	DisplayName     string `json:"name"`
	AvatarID        string `json:"avatarId"`
	Score           int    `json:"score"`
	EliminatedRound int    `json:"eliminatedRound,omitempty"`
}

// PlayerRoundResult reports how one player did in a round.
type PlayerRoundResult struct {
	PlayerID   string `json:"playerId"`
	Correct    bool   `json:"correct"`
	Eliminated bool   `json:"eliminated"`
	Reason     string `json:"reason,omitempty"`
	Score      int    `json:"score"`
}

// GameResult is produced on entry to game_over.
type GameResult struct {
	RoomCode     string     `json:"roomCode"`
	Winner       *Standing  `json:"winner"`
	Standings    []Standing `json:"standings"`
	RoundsPlayed int        `json:"roundsPlayed"`
	Solo         bool       `json:"solo"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   time.Time  `json:"finishedAt"`
}

// GameRecord is the archived form of a finished game.
type GameRecord struct {
	ID           uint       `json:"id"`
	RoomCode     string     `json:"room_code"`
	WinnerID     string     `json:"winner_id,omitempty"`
	RoundsPlayed int        `json:"rounds_played"`
	Solo         bool       `json:"solo"`
	Standings    []Standing `json:"standings"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}

// PlayerStats aggregates a player's archived games.
type PlayerStats struct {
	PlayerID   string `json:"player_id"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	BestScore  int    `json:"best_score"`
	BestRound  int    `json:"best_round"`
}

package network

import (
	"encoding/json"
	"time"

	"github.com/wfunc/simonserver/models"
)

// Inbound events.
const (
	EventJoinRoomSocket = "join_room_socket"
	EventStartGame      = "start_game"
	EventSubmitColor    = "submit_color"
	EventSubmitSequence = "submit_sequence"
	EventRestartGame    = "restart_game"
	EventLeaveRoom      = "leave_room"
	EventPing           = "ping"
)

// Outbound events.
const (
	EventRoomState        = "room_state"
	EventRoomStateUpdate  = "room_state_update"
	EventCountdown        = "countdown"
	EventPlayerJoined     = "player_joined"
	EventPlayerLeft       = "player_left"
	EventRoundStart       = "round_start"
	EventInputPhase       = "input_phase"
	EventPlayerSubmitted  = "player_submitted"
	EventPlayerEliminated = "player_eliminated"
	EventRoundResult      = "round_result"
	EventGameOver         = "game_over"
	EventGameRestarted    = "game_restarted"
	EventError            = "error"
	EventPong             = "pong"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into a frame for event.
func Encode(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses a frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, models.ErrInvalidRequest
	}
	return env, nil
}

// RoomRequest is the common inbound payload.
type RoomRequest struct {
	GameCode string   `json:"gameCode"`
	PlayerID string   `json:"playerId"`
	Color    string   `json:"color,omitempty"`
	Sequence []string `json:"sequence,omitempty"`
}

type CountdownPayload struct {
	Count int `json:"count"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

type RoundStartPayload struct {
	Round          int            `json:"round"`
	Sequence       []models.Color `json:"sequence"`
	ShowDurationMs int64          `json:"showDurationMs"`
	ActivePlayers  []string       `json:"activePlayers"`
}

type InputPhasePayload struct {
	Round       int       `json:"round"`
	Deadline    time.Time `json:"deadline"`
	TimeLimitMs int64     `json:"timeLimitMs"`
}

type PlayerSubmittedPayload struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

type PlayerEliminatedPayload struct {
	PlayerID string `json:"playerId"`
	Round    int    `json:"round"`
	Reason   string `json:"reason"`
}

type RoundResultPayload struct {
	Round   int                        `json:"round"`
	Results []models.PlayerRoundResult `json:"results"`
	Scores  map[string]int             `json:"scores"`
}

type GameOverPayload struct {
	Winner       *models.Standing  `json:"winner"`
	Standings    []models.Standing `json:"standings"`
	RoundsPlayed int               `json:"roundsPlayed"`
}

type GameRestartedPayload struct {
	GameCode string `json:"gameCode"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Elimination reasons.
const (
	ReasonWrong        = "wrong"
	ReasonTimeout      = "timeout"
	ReasonDisconnected = "disconnected"
)

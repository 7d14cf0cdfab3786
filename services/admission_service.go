// services/admission_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/room"
)

// Admission is what a player receives after creating or joining a room.
type Admission struct {
	GameCode string
	Player   models.Player
	Token    string
}

// AdmissionService seats players in rooms and issues their session tokens.
type AdmissionService struct {
	rooms  *room.Manager
	tokens *auth.TokenManager
	clock  func() time.Time
}

func NewAdmissionService(rooms *room.Manager, tokens *auth.TokenManager) *AdmissionService {
	return &AdmissionService{rooms: rooms, tokens: tokens, clock: time.Now}
}

// CreateRoom 创建房间，调用者成为房主
func (s *AdmissionService) CreateRoom(displayName, avatarID string) (Admission, error) {
	player, err := models.NewPlayer(uuid.NewString(), displayName, avatarID)
	if err != nil {
		return Admission{}, err
	}
	view := player.Clone()
	r, err := s.rooms.CreateRoom(player)
	if err != nil {
		return Admission{}, err
	}
	return s.admit(r.ID, view, true)
}

// JoinRoom 加入已有房间
func (s *AdmissionService) JoinRoom(gameCode, displayName, avatarID string) (Admission, error) {
	player, err := models.NewPlayer(uuid.NewString(), displayName, avatarID)
	if err != nil {
		return Admission{}, err
	}
	view := player.Clone()
	r, err := s.rooms.JoinRoom(gameCode, player)
	if err != nil {
		return Admission{}, err
	}
	return s.admit(r.ID, view, false)
}

// VerifySession checks the token and that its player still holds a seat.
func (s *AdmissionService) VerifySession(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidSession, err)
	}
	r, err := s.rooms.GetRoom(claims.GameCode)
	if err != nil {
		return nil, err
	}
	if !r.HasPlayer(claims.PlayerID) {
		return nil, models.ErrPlayerNotFound
	}
	return claims, nil
}

// LeaveRoom removes the token's player from its room.
func (s *AdmissionService) LeaveRoom(token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidSession, err)
	}
	r, err := s.rooms.GetRoom(claims.GameCode)
	if err != nil {
		return err
	}
	return r.Leave(claims.PlayerID)
}

// admit works on a copy taken before the room owned the player.
func (s *AdmissionService) admit(code string, player models.Player, host bool) (Admission, error) {
	token, err := s.tokens.Generate(player.ID, code, host, s.clock())
	if err != nil {
		return Admission{}, err
	}
	player.IsHost = host
	logger.Log.Debugf("player %s admitted to room %s (host=%v)", player.ID, code, host)
	return Admission{
		GameCode: code,
		Player:   player,
		Token:    token,
	}, nil
}

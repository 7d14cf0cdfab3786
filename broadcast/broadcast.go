// broadcast/broadcast.go
package broadcast

import (
	"errors"
	"fmt"

	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/session"
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload any) error
	SendToPlayer(roomCode, playerID, event string, payload any) error
	BroadcastToAll(event string, payload any) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom encodes the event once and queues it on every session
// bound to the room. A failing session does not stop delivery to the rest.
func (b *RoomBroadcaster) BroadcastToRoom(roomCode, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	var errs []error
	for _, s := range b.sessionManager.GetByRoom(roomCode) {
		if err := s.SendRaw(frame); err != nil {
			// 处理发送错误，慢客户端由写协程自行关闭
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SendToPlayer queues the event for one player. A player without a live
// connection is skipped.
func (b *RoomBroadcaster) SendToPlayer(roomCode, playerID, event string, payload any) error {
	s, ok := b.sessionManager.GetByPlayer(roomCode, playerID)
	if !ok {
		return nil
	}
	return s.Send(event, payload)
}

// BroadcastToAll reaches every open session, bound or not.
func (b *RoomBroadcaster) BroadcastToAll(event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	var errs []error
	b.sessionManager.Each(func(s *session.Session) {
		if err := s.SendRaw(frame); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	})
	return errors.Join(errs...)
}

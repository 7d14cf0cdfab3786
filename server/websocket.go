package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/room"
	"github.com/wfunc/simonserver/session"
	"github.com/wfunc/simonserver/state"
)

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		logger.Log.Infof("Rejected connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, models.UserMessage(err), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), claims)
}

// authenticate reads the session token from the cookie or the token query
// parameter. Without a token manager every connection is anonymous.
func (s *GameServer) authenticate(r *http.Request) (*auth.Claims, error) {
	if s.tokens == nil {
		return nil, nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie(SessionCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		if s.requireToken {
			return nil, models.ErrInvalidSession
		}
		return nil, nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidSession, err)
	}
	return claims, nil
}

func (s *GameServer) handleConnection(conn network.Connection, claims *auth.Claims) {
	if s.sessionOpts.PingInterval > 0 {
		conn.SetHeartbeat(s.sessionOpts.PingInterval)
	}
	sess := session.NewSession(conn, s.sessionOpts)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()
	go sess.WritePump()

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		s.disconnect(sess)
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-sess.Done():
			return
		default:
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			if network.IsUnexpectedClose(err) {
				logger.Log.Debugf("session %s: read: %v", sess.GetID(), err)
			}
			return
		}
		sess.Touch()
		s.handleFrame(sess, claims, frame)
	}
}

// disconnect releases the session. The player keeps its seat for the
// reconnect grace unless another connection already took it over.
func (s *GameServer) disconnect(sess *session.Session) {
	code, playerID := sess.Unbind()
	s.sessionManager.Remove(sess.GetID())
	sess.Close()
	s.monitor.DecOnlineConnections()

	if playerID == "" {
		return
	}
	if _, replaced := s.sessionManager.GetByPlayer(code, playerID); replaced {
		return
	}
	if rm, err := s.roomManager.GetRoom(code); err == nil {
		rm.Detach(playerID)
	}
}

func (s *GameServer) handleFrame(sess *session.Session, claims *auth.Claims, frame []byte) {
	if !sess.Allow() {
		s.reject(sess, "", models.ErrRateLimited)
		return
	}

	env, err := network.Decode(frame)
	if err != nil {
		s.reject(sess, "", fmt.Errorf("%w: %w", models.ErrInvalidRequest, err))
		return
	}

	start := time.Now()
	s.monitor.IncMessagesReceived(env.Event)
	err = s.dispatch(sess, claims, env)
	s.monitor.ObserveMessageLatency(time.Since(start))
	if err != nil {
		s.reject(sess, env.Event, err)
	}
}

// roomEvents are the inbound events that carry a RoomRequest.
var roomEvents = map[string]bool{
	network.EventJoinRoomSocket: true,
	network.EventStartGame:      true,
	network.EventSubmitColor:    true,
	network.EventSubmitSequence: true,
	network.EventRestartGame:    true,
	network.EventLeaveRoom:      true,
}

func (s *GameServer) dispatch(sess *session.Session, claims *auth.Claims, env network.Envelope) error {
	if env.Event == network.EventPing {
		return sess.Send(network.EventPong, nil)
	}
	if !roomEvents[env.Event] {
		logger.Log.Debugf("session %s: unknown event %q", sess.GetID(), env.Event)
		return models.ErrInvalidRequest
	}

	var req network.RoomRequest
	if len(env.Data) == 0 {
		return models.ErrInvalidRequest
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidRequest, err)
	}
	req.GameCode = room.NormalizeCode(req.GameCode)
	req.PlayerID = strings.TrimSpace(req.PlayerID)

	if claims != nil && (claims.PlayerID != req.PlayerID || claims.GameCode != req.GameCode) {
		return models.ErrNotJoined
	}

	if env.Event == network.EventJoinRoomSocket {
		return s.joinRoom(sess, req)
	}

	rm, err := s.boundRoom(sess, req)
	if err != nil {
		return err
	}

	switch env.Event {
	case network.EventStartGame:
		return rm.HandleAction(req.PlayerID, state.Action{Type: state.ActionStartGame})
	case network.EventSubmitColor:
		return rm.HandleAction(req.PlayerID, state.Action{
			Type:  state.ActionSubmitColor,
			Color: models.Color(req.Color),
		})
	case network.EventSubmitSequence:
		colors := make([]models.Color, len(req.Sequence))
		for i, c := range req.Sequence {
			colors[i] = models.Color(c)
		}
		return rm.HandleAction(req.PlayerID, state.Action{
			Type:     state.ActionSubmitSequence,
			Sequence: colors,
		})
	case network.EventRestartGame:
		return rm.HandleAction(req.PlayerID, state.Action{Type: state.ActionRestartGame})
	default: // network.EventLeaveRoom
		sess.Unbind()
		return rm.Leave(req.PlayerID)
	}
}

// joinRoom binds the connection to a seated player and sends it the room.
// A newer connection for the same player replaces the older one.
func (s *GameServer) joinRoom(sess *session.Session, req network.RoomRequest) error {
	if req.GameCode == "" || req.PlayerID == "" {
		return models.ErrInvalidRequest
	}
	rm, err := s.roomManager.GetRoom(req.GameCode)
	if err != nil {
		return err
	}

	previous, err := s.sessionManager.Bind(sess, rm.ID, req.PlayerID)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidRequest, err)
	}
	snap, err := rm.Attach(req.PlayerID)
	if err != nil {
		sess.Unbind()
		return err
	}
	if previous != nil {
		logger.Log.Infof("room %s: player %s reconnected, closing session %s", rm.ID, req.PlayerID, previous.GetID())
		_ = previous.Send(network.EventError, network.ErrorPayload{Message: "Connected from another window."})
		previous.Close()
	}
	return sess.Send(network.EventRoomState, snap)
}

// boundRoom returns the room of the player this connection joined as.
func (s *GameServer) boundRoom(sess *session.Session, req network.RoomRequest) (*room.Room, error) {
	if sess.PlayerID() == "" || sess.PlayerID() != req.PlayerID || sess.GameCode() != req.GameCode {
		return nil, models.ErrNotJoined
	}
	return s.roomManager.GetRoom(req.GameCode)
}

// reject sends the error to the originating connection only.
func (s *GameServer) reject(sess *session.Session, event string, err error) {
	kind := models.KindOf(err)
	s.monitor.IncRejectedActions(kind.String())

	switch kind {
	case models.KindPhaseViolation, models.KindCapacity:
		logger.Log.Debugf("session %s: %s rejected: %v", sess.GetID(), event, err)
	case models.KindInternal:
		logger.Log.Warnf("session %s: %s failed: %v", sess.GetID(), event, err)
	default:
		logger.Log.Infof("session %s: %s rejected: %v", sess.GetID(), event, err)
	}

	if sendErr := sess.Send(network.EventError, network.ErrorPayload{Message: models.UserMessage(err)}); sendErr != nil {
		logger.Log.Debugf("session %s: error not delivered: %v", sess.GetID(), sendErr)
	}
}

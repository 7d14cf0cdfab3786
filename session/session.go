// session/session.go
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/network"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendQueueFull = errors.New("send queue full")
	ErrAlreadyBound  = errors.New("session already bound to a player")
)

const (
	defaultSendBuffer = 64
	flushTimeout      = time.Second
)

// Options tune a session's queues and limits.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	// RatePerSecond of zero disables inbound limiting.
	RatePerSecond float64
	Burst         int
}

// Session is one live client connection, optionally bound to a player in a
// room. Outbound frames go through a buffered queue drained by WritePump so a
// slow client never blocks the sender.
type Session struct {
	ID        string
	Conn      network.Connection
	CreatedAt time.Time

	lastActive time.Time
	gameCode   string
	playerID   string
	mutex      sync.RWMutex

	limiter      *rate.Limiter
	pingInterval time.Duration
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pumping      atomic.Bool
	pumpDone     chan struct{}
}

func NewSession(conn network.Connection, opts Options) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		Conn:         conn,
		CreatedAt:    now,
		lastActive:   now,
		pingInterval: opts.PingInterval,
		send:         make(chan []byte, opts.SendBuffer),
		done:         make(chan struct{}),
		pumpDone:     make(chan struct{}),
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RatePerSecond)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return s
}

// Bind attaches the session to a player. A session carries one player for
// its lifetime; binding it again to the same player is allowed.
func (s *Session) Bind(gameCode, playerID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.playerID != "" && (s.playerID != playerID || s.gameCode != gameCode) {
		return ErrAlreadyBound
	}
	s.gameCode = gameCode
	s.playerID = playerID
	return nil
}

// Unbind detaches the session and returns what it was bound to.
func (s *Session) Unbind() (gameCode, playerID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	gameCode, playerID = s.gameCode, s.playerID
	s.gameCode, s.playerID = "", ""
	return
}

func (s *Session) GameCode() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.gameCode
}

func (s *Session) PlayerID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.playerID
}

func (s *Session) boundTo(gameCode string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.gameCode == gameCode && s.playerID != ""
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Allow reports whether another inbound message may be processed now.
func (s *Session) Allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Send encodes and queues one event.
func (s *Session) Send(event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return s.SendRaw(frame)
}

// SendRaw queues an encoded frame without blocking.
func (s *Session) SendRaw(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// WritePump drains the send queue into the connection until the session is
// closed or a write fails. It pings the peer every PingInterval.
func (s *Session) WritePump() {
	s.pumping.Store(true)
	defer close(s.pumpDone)

	var ping <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame := <-s.send:
			if err := s.Conn.Send(frame); err != nil {
				logger.Log.Debugf("session %s: write failed: %v", s.ID, err)
				s.shutdown(false)
				return
			}
		case <-ping:
			if err := s.Conn.Ping(); err != nil {
				logger.Log.Debugf("session %s: ping failed: %v", s.ID, err)
				s.shutdown(false)
				return
			}
		case <-s.done:
			s.flush()
			return
		}
	}
}

// flush writes frames already queued when the session closed.
func (s *Session) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.Conn.Send(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) GetID() string {
	return s.ID
}

// Close stops the session. Frames already queued are written first when a
// pump is running.
func (s *Session) Close() error {
	return s.shutdown(true)
}

func (s *Session) shutdown(waitFlush bool) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if waitFlush && s.pumping.Load() {
			select {
			case <-s.pumpDone:
			case <-time.After(flushTimeout):
			}
		}
		err = s.Conn.Close()
	})
	return err
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Bind binds s to the player and returns the session previously bound to
// the same player, if any. The previous session is unbound.
func (m *Manager) Bind(s *Session, gameCode, playerID string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := s.Bind(gameCode, playerID); err != nil {
		return nil, err
	}
	var previous *Session
	for _, other := range m.sessions {
		if other == s {
			continue
		}
		if other.GameCode() == gameCode && other.PlayerID() == playerID {
			other.Unbind()
			previous = other
		}
	}
	return previous, nil
}

// GetByRoom returns the sessions bound to a room.
func (m *Manager) GetByRoom(gameCode string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.boundTo(gameCode) {
			result = append(result, session)
		}
	}
	return result
}

// GetByPlayer returns the session bound to the player in a room.
func (m *Manager) GetByPlayer(gameCode, playerID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, session := range m.sessions {
		if session.GameCode() == gameCode && session.PlayerID() == playerID {
			return session, true
		}
	}
	return nil, false
}

// Each calls fn for every session. fn must not call back into the manager.
func (m *Manager) Each(fn func(*Session)) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, session := range m.sessions {
		fn(session)
	}
}

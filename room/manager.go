package room

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/sequence"
	"github.com/wfunc/simonserver/state"
	"github.com/wfunc/simonserver/timer"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	codeAttempts = 16

	// codeByteLimit is the largest multiple of len(codeAlphabet) that fits a byte
	codeByteLimit = 256 - 256%len(codeAlphabet)
)

// ManagerConfig is shared by every room the manager creates.
type ManagerConfig struct {
	Settings       state.Settings
	ReconnectGrace time.Duration
	EmptyRoomGrace time.Duration
	// MaxRooms caps concurrently open rooms. Zero means no cap.
	MaxRooms     int
	Broadcaster  Broadcaster
	Timers       timer.Scheduler
	NewSequencer func() sequence.Generator
	OnFinished   func(result models.GameResult)
}

// Manager 管理所有房间
type Manager struct {
	rooms       map[string]*Room
	evictTimers map[string]int64
	mutex       sync.RWMutex
	cfg         ManagerConfig
	newCode     func() (string, error)
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(cfg ManagerConfig) *Manager {
	if cfg.Timers == nil {
		cfg.Timers = timer.NewTimerManager(10 * time.Millisecond)
	}
	if cfg.NewSequencer == nil {
		cfg.NewSequencer = func() sequence.Generator { return sequence.NewRandomGenerator() }
	}
	return &Manager{
		rooms:       make(map[string]*Room),
		evictTimers: make(map[string]int64),
		cfg:         cfg,
		newCode:     GenerateCode,
	}
}

// GenerateCode returns a random room code.
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

// generateCode draws uniformly from codeAlphabet, redrawing bytes that would
// bias the modulo toward the first characters.
func generateCode(src io.Reader) (string, error) {
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for len(code) < codeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeByteLimit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == codeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom 创建一个新房间，host 成为唯一的玩家和房主
func (m *Manager) CreateRoom(host *models.Player) (*Room, error) {
	m.mutex.Lock()
	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		m.mutex.Unlock()
		return nil, models.ErrServerFull
	}

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == codeAttempts {
			m.mutex.Unlock()
			return nil, fmt.Errorf("no free room code after %d attempts", codeAttempts)
		}
		c, err := m.newCode()
		if err != nil {
			m.mutex.Unlock()
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := m.rooms[c]; !taken {
			code = c
			break
		}
	}

	room := NewRoom(code, Options{
		Settings:       m.cfg.Settings,
		Broadcaster:    m.cfg.Broadcaster,
		Timers:         m.cfg.Timers,
		Sequencer:      m.cfg.NewSequencer(),
		ReconnectGrace: m.cfg.ReconnectGrace,
		OnEmpty:        m.scheduleEviction,
		OnFinished:     m.cfg.OnFinished,
	})
	m.rooms[code] = room
	m.mutex.Unlock()

	if err := room.AddPlayer(host); err != nil {
		m.RemoveRoom(code)
		return nil, err
	}
	logger.Log.Infof("room %s created by %s", code, host.ID)
	return room, nil
}

// JoinRoom seats player in the room with the given code.
func (m *Manager) JoinRoom(code string, player *models.Player) (*Room, error) {
	room, err := m.GetRoom(code)
	if err != nil {
		return nil, err
	}
	if err := room.AddPlayer(player); err != nil {
		return nil, err
	}
	m.cancelEviction(room.ID)
	return room, nil
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[NormalizeCode(code)]
	if !exists {
		return nil, models.ErrRoomNotFound
	}
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(code string) {
	code = NormalizeCode(code)
	m.mutex.Lock()
	room, exists := m.rooms[code]
	if exists {
		delete(m.rooms, code)
	}
	if id, ok := m.evictTimers[code]; ok {
		m.cfg.Timers.RemoveTimer(id)
		delete(m.evictTimers, code)
	}
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

// Count returns the number of open rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Close closes every room.
func (m *Manager) Close() {
	m.mutex.RLock()
	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		codes = append(codes, code)
	}
	m.mutex.RUnlock()

	for _, code := range codes {
		m.RemoveRoom(code)
	}
}

// scheduleEviction runs on the room loop when the room becomes empty.
func (m *Manager) scheduleEviction(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if id, ok := m.evictTimers[code]; ok {
		m.cfg.Timers.RemoveTimer(id)
	}
	var id int64
	id = m.cfg.Timers.AddTimer(m.cfg.EmptyRoomGrace, 0, func() {
		m.evictIfEmpty(code, &id)
	})
	m.evictTimers[code] = id
	logger.Log.Debugf("room %s empty, evicting in %s", code, m.cfg.EmptyRoomGrace)
}

func (m *Manager) cancelEviction(code string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if id, ok := m.evictTimers[code]; ok {
		m.cfg.Timers.RemoveTimer(id)
		delete(m.evictTimers, code)
	}
}

// evictIfEmpty closes the room unless someone joined or the timer was
// replaced. timerID is written under m.mutex by scheduleEviction.
func (m *Manager) evictIfEmpty(code string, timerID *int64) {
	m.mutex.RLock()
	current, pending := m.evictTimers[code]
	stale := !pending || current != *timerID
	m.mutex.RUnlock()
	if stale {
		return
	}

	room, err := m.GetRoom(code)
	if err != nil {
		return
	}
	if !room.retireIfEmpty() {
		m.cancelEviction(code)
		return
	}
	logger.Log.Infof("room %s evicted after staying empty", code)
	m.RemoveRoom(code)
}

package session

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu      sync.Mutex
	frames  [][]byte
	pings   int
	closed  bool
	sendErr error
}

func (m *MockConnection) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *MockConnection) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) ReadFrame() ([]byte, error)          { return nil, errors.New("not implemented") }
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}

func (m *MockConnection) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

func (m *MockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sess := NewSession(&MockConnection{}, Options{})
	require.NotEmpty(t, sess.ID)

	manager.Add(sess)
	assert.Equal(t, 1, manager.Count())

	got, exists := manager.Get(sess.ID)
	require.True(t, exists)
	assert.Same(t, sess, got)

	manager.Remove(sess.ID)
	assert.Zero(t, manager.Count())
	_, exists = manager.Get(sess.ID)
	assert.False(t, exists)
}

func TestManager_GetByRoom(t *testing.T) {
	manager := NewManager()
	a := NewSession(&MockConnection{}, Options{})
	b := NewSession(&MockConnection{}, Options{})
	c := NewSession(&MockConnection{}, Options{})
	idle := NewSession(&MockConnection{}, Options{})
	for _, s := range []*Session{a, b, c, idle} {
		manager.Add(s)
	}

	_, err := manager.Bind(a, "ROOM01", "p1")
	require.NoError(t, err)
	_, err = manager.Bind(b, "ROOM01", "p2")
	require.NoError(t, err)
	_, err = manager.Bind(c, "ROOM02", "p3")
	require.NoError(t, err)

	assert.ElementsMatch(t, []*Session{a, b}, manager.GetByRoom("ROOM01"))
	assert.Len(t, manager.GetByRoom("ROOM02"), 1)
	assert.Empty(t, manager.GetByRoom("ROOM03"))

	got, ok := manager.GetByPlayer("ROOM01", "p2")
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = manager.GetByPlayer("ROOM02", "p2")
	assert.False(t, ok)
}

func TestManager_BindReplacesPreviousSession(t *testing.T) {
	manager := NewManager()
	old := NewSession(&MockConnection{}, Options{})
	fresh := NewSession(&MockConnection{}, Options{})
	manager.Add(old)
	manager.Add(fresh)

	_, err := manager.Bind(old, "ROOM01", "p1")
	require.NoError(t, err)
	previous, err := manager.Bind(fresh, "ROOM01", "p1")
	require.NoError(t, err)
	assert.Same(t, old, previous)
	assert.Empty(t, old.PlayerID())
	assert.Equal(t, []*Session{fresh}, manager.GetByRoom("ROOM01"))
}

func TestSession_BindOnce(t *testing.T) {
	s := NewSession(&MockConnection{}, Options{})
	require.NoError(t, s.Bind("ROOM01", "p1"))
	require.NoError(t, s.Bind("ROOM01", "p1"))
	assert.ErrorIs(t, s.Bind("ROOM01", "p2"), ErrAlreadyBound)

	code, player := s.Unbind()
	assert.Equal(t, "ROOM01", code)
	assert.Equal(t, "p1", player)
	assert.NoError(t, s.Bind("ROOM02", "p2"))
}

func TestSession_SendAndPump(t *testing.T) {
	conn := &MockConnection{}
	s := NewSession(conn, Options{SendBuffer: 4})
	go s.WritePump()

	require.NoError(t, s.Send(network.EventPong, nil))
	require.NoError(t, s.Send(network.EventCountdown, network.CountdownPayload{Count: 2}))

	require.Eventually(t, func() bool { return len(conn.sent()) == 2 }, time.Second, time.Millisecond)
	frames := conn.sent()
	assert.JSONEq(t, `{"event":"pong"}`, string(frames[0]))
	assert.JSONEq(t, `{"event":"countdown","data":{"count":2}}`, string(frames[1]))

	require.NoError(t, s.Close())
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, s.Send(network.EventPong, nil), ErrSessionClosed)
	assert.NoError(t, s.Close())
}

func TestSession_SlowClientDoesNotBlock(t *testing.T) {
	s := NewSession(&MockConnection{}, Options{SendBuffer: 2})

	require.NoError(t, s.SendRaw([]byte(`{}`)))
	require.NoError(t, s.SendRaw([]byte(`{}`)))
	assert.ErrorIs(t, s.SendRaw([]byte(`{}`)), ErrSendQueueFull)
}

func TestSession_WriteErrorCloses(t *testing.T) {
	conn := &MockConnection{sendErr: errors.New("broken pipe")}
	s := NewSession(conn, Options{})
	go s.WritePump()

	require.NoError(t, s.SendRaw([]byte(`{}`)))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session should close after a failed write")
	}
}

func TestSession_Pings(t *testing.T) {
	conn := &MockConnection{}
	s := NewSession(conn, Options{PingInterval: 5 * time.Millisecond})
	go s.WritePump()
	defer s.Close()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pings >= 2
	}, time.Second, time.Millisecond)
}

func TestSession_RateLimit(t *testing.T) {
	s := NewSession(&MockConnection{}, Options{RatePerSecond: 1, Burst: 3})
	allowed := 0
	for i := 0; i < 10; i++ {
		if s.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	unlimited := NewSession(&MockConnection{}, Options{})
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}
}

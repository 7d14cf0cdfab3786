// network/connection.go
package network

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 5 * time.Second
	maxFrameSize = 4096
)

// Connection is one client transport carrying JSON frames.
type Connection interface {
	Send(frame []byte) error
	ReadFrame() ([]byte, error)
	Ping() error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	conn.SetReadLimit(maxFrameSize)
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(frame []byte) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// ReadFrame blocks for the next data frame. Every frame received pushes the
// read deadline forward when a heartbeat is set.
func (c *WSConnection) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.extendDeadline()
	return data, nil
}

func (c *WSConnection) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// SetHeartbeat expects a pong or a frame at least every 2*interval.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
}

func (c *WSConnection) extendDeadline() {
	if c.heartbeat > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.heartbeat * 2))
	}
}

func (c *WSConnection) Close() error {
	c.sendMutex.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.sendMutex.Unlock()
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsUnexpectedClose reports whether err is a read error worth logging.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived)
}

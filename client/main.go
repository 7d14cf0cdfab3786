// Command client is a terminal player for manual testing.
//
//	client --name Ann                 create a room
//	client --name Bob --join ABC123   join one
//
// Then type: start, submit <color...>, color <color>, restart, leave, quit.
package main

import (
	"bufio"
	"net/http"
	netrpc "net/rpc"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/network"
	simonrpc "github.com/wfunc/simonserver/rpc"
	"github.com/wfunc/simonserver/server"
)

func main() {
	var (
		wsAddr  = pflag.String("ws", "localhost:8080", "game server address")
		rpcAddr = pflag.String("rpc", "localhost:8081", "admission RPC address")
		name    = pflag.String("name", "Player", "display name")
		avatar  = pflag.String("avatar", "1", "avatar id")
		code    = pflag.String("join", "", "room code to join; empty creates a room")
	)
	pflag.Parse()

	if err := logger.Init("debug", true); err != nil {
		panic(err)
	}
	defer logger.Sync()

	seat, err := admit(*rpcAddr, *code, *name, *avatar)
	if err != nil {
		logger.Log.Fatalf("Admission failed: %v", err)
	}
	logger.Log.Infof("Seated in room %s as %s (host=%v)", seat.GameCode, seat.Player.ID, seat.Player.IsHost)

	u := url.URL{Scheme: "ws", Host: *wsAddr, Path: "/ws"}
	header := http.Header{}
	header.Add("Cookie", (&http.Cookie{Name: server.SessionCookie, Value: seat.Token}).String())
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			env, err := network.Decode(message)
			if err != nil {
				logger.Log.Warnf("Received invalid frame: %s", message)
				continue
			}
			logger.Log.Infof("<- %s %s", env.Event, env.Data)
		}
	}()

	req := network.RoomRequest{GameCode: seat.GameCode, PlayerID: seat.Player.ID}
	if err := send(c, network.EventJoinRoomSocket, req); err != nil {
		logger.Log.Fatalf("Write error: %v", err)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			closeConn(c, done)
			return
		case line, ok := <-lines:
			if !ok || line == "quit" {
				closeConn(c, done)
				return
			}
			event, payload, ok := parseCommand(line, req)
			if !ok {
				logger.Log.Infof("Unknown command %q", line)
				continue
			}
			if err := send(c, event, payload); err != nil {
				logger.Log.Errorf("Write error: %v", err)
				return
			}
			logger.Log.Infof("-> %s", event)
		}
	}
}

// admit creates or joins a room over the admission RPC.
func admit(addr, code, name, avatar string) (simonrpc.AdmissionReply, error) {
	client, err := netrpc.Dial("tcp", addr)
	if err != nil {
		return simonrpc.AdmissionReply{}, err
	}
	defer client.Close()

	var reply simonrpc.AdmissionReply
	if code == "" {
		err = client.Call(simonrpc.ServiceName+".CreateRoom", &simonrpc.CreateRoomArgs{DisplayName: name, AvatarID: avatar}, &reply)
	} else {
		err = client.Call(simonrpc.ServiceName+".JoinRoom", &simonrpc.JoinRoomArgs{GameCode: code, DisplayName: name, AvatarID: avatar}, &reply)
	}
	return reply, err
}

func parseCommand(line string, req network.RoomRequest) (string, any, bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", nil, false
	}
	switch fields[0] {
	case "start":
		return network.EventStartGame, req, true
	case "restart":
		return network.EventRestartGame, req, true
	case "leave":
		return network.EventLeaveRoom, req, true
	case "ping":
		return network.EventPing, nil, true
	case "color":
		if len(fields) != 2 {
			return "", nil, false
		}
		req.Color = fields[1]
		return network.EventSubmitColor, req, true
	case "submit":
		if len(fields) < 2 {
			return "", nil, false
		}
		req.Sequence = fields[1:]
		return network.EventSubmitSequence, req, true
	}
	return "", nil, false
}

func send(c *websocket.Conn, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Log.Infof("Write close error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/broadcast"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/monitor"
	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/room"
	"github.com/wfunc/simonserver/session"
	"github.com/wfunc/simonserver/state"
	"github.com/wfunc/simonserver/timer"
)

type gateway struct {
	srv   *httptest.Server
	gs    *GameServer
	rooms *room.Manager
}

func fastSettings() state.Settings {
	return state.Settings{
		MaxPlayers:        4,
		CountdownFrom:     1,
		CountdownInterval: 5 * time.Millisecond,
		ShowColorDuration: 5 * time.Millisecond,
		InputBase:         5 * time.Second,
		ResultDelay:       5 * time.Millisecond,
	}
}

func newGateway(t *testing.T, configure func(*Options)) *gateway {
	t.Helper()
	timers := timer.NewTimerManager(time.Millisecond)
	sessions := session.NewManager()
	broadcaster := broadcast.NewRoomBroadcaster(sessions)
	rooms := room.NewRoomManager(room.ManagerConfig{
		Settings:       fastSettings(),
		ReconnectGrace: time.Minute,
		EmptyRoomGrace: time.Minute,
		Broadcaster:    broadcaster,
		Timers:         timers,
	})

	opts := Options{
		Rooms:       rooms,
		Sessions:    sessions,
		Broadcaster: broadcaster,
		Monitor:     monitor.NewMonitor("simon"),
		PublicURL:   "https://simon.example/",
		Session:     session.Options{SendBuffer: 64},
	}
	if configure != nil {
		configure(&opts)
	}
	gs := NewGameServer(opts)
	srv := httptest.NewServer(gs.Routes())

	t.Cleanup(func() {
		srv.Close()
		rooms.Close()
		timers.Stop()
	})
	return &gateway{srv: srv, gs: gs, rooms: rooms}
}

func (g *gateway) seat(t *testing.T, code, id string) string {
	t.Helper()
	p, err := models.NewPlayer(id, "name-"+id, "1")
	require.NoError(t, err)
	if code == "" {
		r, err := g.rooms.CreateRoom(p)
		require.NoError(t, err)
		return r.ID
	}
	_, err = g.rooms.JoinRoom(code, p)
	require.NoError(t, err)
	return code
}

func (g *gateway) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL()+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := network.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func request(code, player string) network.RoomRequest {
	return network.RoomRequest{GameCode: code, PlayerID: player}
}

// collectUntil reads frames up to and including the first one named event.
func collectUntil(t *testing.T, conn *websocket.Conn, event string) []network.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var seen []network.Envelope
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		env, err := network.Decode(frame)
		require.NoError(t, err)
		seen = append(seen, env)
		if env.Event == event {
			return seen
		}
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	seen := collectUntil(t, conn, event)
	if out != nil {
		require.NoError(t, json.Unmarshal(seen[len(seen)-1].Data, out))
	}
}

func join(t *testing.T, conn *websocket.Conn, code, player string) models.RoomSnapshot {
	t.Helper()
	send(t, conn, network.EventJoinRoomSocket, request(code, player))
	var snap models.RoomSnapshot
	readUntil(t, conn, network.EventRoomState, &snap)
	return snap
}

func expectError(t *testing.T, conn *websocket.Conn, want *models.Error) {
	t.Helper()
	var payload network.ErrorPayload
	readUntil(t, conn, network.EventError, &payload)
	assert.Equal(t, want.Message, payload.Message)
}

func otherColor(c models.Color) models.Color {
	if c == models.ColorRed {
		return models.ColorBlue
	}
	return models.ColorRed
}

func TestGateway_SoloGame(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")
	conn := g.dial(t, "")

	snap := join(t, conn, strings.ToLower(code), "h")
	assert.Equal(t, code, snap.Code)
	assert.Equal(t, models.StatusWaiting, snap.Status)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].Connected)

	send(t, conn, network.EventStartGame, request(code, "h"))
	var countdown network.CountdownPayload
	readUntil(t, conn, network.EventCountdown, &countdown)
	assert.Equal(t, 1, countdown.Count)

	var round network.RoundStartPayload
	readUntil(t, conn, network.EventRoundStart, &round)
	require.Equal(t, 1, round.Round)
	require.Len(t, round.Sequence, 1)
	readUntil(t, conn, network.EventInputPhase, nil)

	req := request(code, "h")
	req.Color = string(round.Sequence[0])
	send(t, conn, network.EventSubmitColor, req)

	var submitted network.PlayerSubmittedPayload
	readUntil(t, conn, network.EventPlayerSubmitted, &submitted)
	assert.Equal(t, network.PlayerSubmittedPayload{PlayerID: "h", Score: 1}, submitted)
	readUntil(t, conn, network.EventRoundResult, nil)

	readUntil(t, conn, network.EventRoundStart, &round)
	require.Equal(t, 2, round.Round)
	require.Len(t, round.Sequence, 2)
	readUntil(t, conn, network.EventInputPhase, nil)

	req.Color = ""
	req.Sequence = []string{string(round.Sequence[0]), string(otherColor(round.Sequence[1]))}
	send(t, conn, network.EventSubmitSequence, req)

	var eliminated network.PlayerEliminatedPayload
	readUntil(t, conn, network.EventPlayerEliminated, &eliminated)
	assert.Equal(t, network.PlayerEliminatedPayload{PlayerID: "h", Round: 2, Reason: network.ReasonWrong}, eliminated)

	var over network.GameOverPayload
	readUntil(t, conn, network.EventGameOver, &over)
	assert.Nil(t, over.Winner)
	assert.Equal(t, 2, over.RoundsPlayed)
	require.Len(t, over.Standings, 1)
	assert.Equal(t, 1, over.Standings[0].Score)

	send(t, conn, network.EventRestartGame, request(code, "h"))
	var restarted network.GameRestartedPayload
	readUntil(t, conn, network.EventGameRestarted, &restarted)
	assert.Equal(t, code, restarted.GameCode)
}

func TestGateway_ErrorGoesToOriginatorOnly(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")
	g.seat(t, code, "g")

	host := g.dial(t, "")
	guest := g.dial(t, "")
	join(t, host, code, "h")
	join(t, guest, code, "g")

	send(t, guest, network.EventStartGame, request(code, "g"))
	expectError(t, guest, models.ErrNotHost)

	send(t, host, network.EventPing, nil)
	for _, env := range collectUntil(t, host, network.EventPong) {
		assert.NotEqual(t, network.EventError, env.Event)
	}
}

func TestGateway_RejectsBadRequests(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")
	conn := g.dial(t, "")

	send(t, conn, network.EventJoinRoomSocket, request("NOPE00", "h"))
	expectError(t, conn, models.ErrRoomNotFound)

	send(t, conn, network.EventStartGame, request(code, "h"))
	expectError(t, conn, models.ErrNotJoined)

	send(t, conn, network.EventJoinRoomSocket, request(code, "stranger"))
	expectError(t, conn, models.ErrNotJoined)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	expectError(t, conn, models.ErrInvalidRequest)

	send(t, conn, "dance", request(code, "h"))
	expectError(t, conn, models.ErrInvalidRequest)

	join(t, conn, code, "h")
	req := request(code, "h")
	req.Color = "purple"
	send(t, conn, network.EventSubmitColor, req)
	expectError(t, conn, models.ErrInputClosed)
}

func TestGateway_RateLimit(t *testing.T) {
	g := newGateway(t, func(o *Options) {
		o.Session.RatePerSecond = 0.001
		o.Session.Burst = 1
	})
	conn := g.dial(t, "")

	send(t, conn, network.EventPing, nil)
	readUntil(t, conn, network.EventPong, nil)

	send(t, conn, network.EventPing, nil)
	expectError(t, conn, models.ErrRateLimited)
}

func TestGateway_DisconnectKeepsSeat(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")
	rm, err := g.rooms.GetRoom(code)
	require.NoError(t, err)

	conn := g.dial(t, "")
	join(t, conn, code, "h")
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		snap, err := rm.Snapshot()
		return err == nil && len(snap.Players) == 1 && !snap.Players[0].Connected
	}, 3*time.Second, 5*time.Millisecond)

	again := g.dial(t, "")
	snap := join(t, again, code, "h")
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].Connected)
}

func TestGateway_NewerConnectionReplacesOlder(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")

	first := g.dial(t, "")
	join(t, first, code, "h")
	second := g.dial(t, "")
	join(t, second, code, "h")

	var payload network.ErrorPayload
	readUntil(t, first, network.EventError, &payload)
	assert.Equal(t, "Connected from another window.", payload.Message)

	rm, err := g.rooms.GetRoom(code)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	snap, err := rm.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Players[0].Connected)
}

func TestGateway_RequireToken(t *testing.T) {
	tokens, err := auth.NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	g := newGateway(t, func(o *Options) {
		o.Tokens = tokens
		o.RequireToken = true
	})
	code := g.seat(t, "", "h")
	g.seat(t, code, "g")

	_, resp, err := websocket.DefaultDialer.Dial(g.wsURL(), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(g.wsURL()+"?token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tokens.Generate("g", code, false, time.Now())
	require.NoError(t, err)

	header := http.Header{}
	header.Add("Cookie", (&http.Cookie{Name: SessionCookie, Value: token}).String())
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	send(t, conn, network.EventJoinRoomSocket, request(code, "h"))
	expectError(t, conn, models.ErrNotJoined)

	snap := join(t, conn, code, "g")
	assert.Equal(t, "h", snap.HostPlayerID)
}

func TestRoutes_Health(t *testing.T) {
	g := newGateway(t, nil)
	g.seat(t, "", "h")

	resp, err := http.Get(g.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["rooms"])
}

func TestRoutes_RoomSnapshot(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")

	resp, err := http.Get(g.srv.URL + "/rooms/" + strings.ToLower(code))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var snap models.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, code, snap.Code)
	assert.Equal(t, "h", snap.HostPlayerID)

	missing, err := http.Get(g.srv.URL + "/rooms/NOPE00")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(missing.Body).Decode(&body))
	assert.Equal(t, models.ErrRoomNotFound.Message, body["error"])
}

func TestRoutes_RoomQR(t *testing.T) {
	g := newGateway(t, nil)
	code := g.seat(t, "", "h")

	resp, err := http.Get(g.srv.URL + "/rooms/" + code + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	assert.Equal(t, "https://simon.example/?join="+code, g.gs.InviteURL(code))
}

func TestRoutes_CORS(t *testing.T) {
	g := newGateway(t, func(o *Options) {
		o.AllowedOrigins = []string{"https://simon.example"}
	})
	code := g.seat(t, "", "h")

	req, err := http.NewRequest(http.MethodOptions, g.srv.URL+"/rooms/"+code, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://simon.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://simon.example", resp.Header.Get("Access-Control-Allow-Origin"))

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(g.wsURL(), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRoutes_Metrics(t *testing.T) {
	g := newGateway(t, nil)
	conn := g.dial(t, "")
	send(t, conn, network.EventPing, nil)
	readUntil(t, conn, network.EventPong, nil)

	resp, err := http.Get(g.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "simon_online_connections 1")
	assert.Contains(t, string(body), `simon_messages_received_total{event="ping"} 1`)
}

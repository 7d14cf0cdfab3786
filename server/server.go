package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/broadcast"
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/monitor"
	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/room"
	"github.com/wfunc/simonserver/session"
)

// SessionCookie is the cookie the session service stores the token in.
const SessionCookie = "simon_session"

type Options struct {
	Address     string
	Rooms       *room.Manager
	Sessions    *session.Manager
	Broadcaster *broadcast.RoomBroadcaster
	Monitor     *monitor.Monitor
	// Tokens verifies session tokens on /ws. Nil disables the check.
	Tokens       *auth.TokenManager
	RequireToken bool
	// AllowedOrigins empty means any origin.
	AllowedOrigins []string
	PublicURL      string
	Session        session.Options
}

// GameServer is the realtime gateway: websocket connections in, room
// events out.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	monitor        *monitor.Monitor
	tokens         *auth.TokenManager
	requireToken   bool
	allowedOrigins []string
	publicURL      string
	sessionOpts    session.Options
	httpServer     *http.Server
	shutdownChan   chan struct{}
}

func NewGameServer(opts Options) *GameServer {
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = broadcast.NewRoomBroadcaster(opts.Sessions)
	}
	if opts.Monitor == nil {
		opts.Monitor = monitor.NewMonitor("simon")
	}

	s := &GameServer{
		addr:           opts.Address,
		roomManager:    opts.Rooms,
		sessionManager: opts.Sessions,
		broadcaster:    opts.Broadcaster,
		monitor:        opts.Monitor,
		tokens:         opts.Tokens,
		requireToken:   opts.RequireToken && opts.Tokens != nil,
		allowedOrigins: opts.AllowedOrigins,
		publicURL:      opts.PublicURL,
		sessionOpts:    opts.Session,
		shutdownChan:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Start serves HTTP until Shutdown is called.
func (s *GameServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown tells every client, stops accepting connections and closes the
// open sessions.
func (s *GameServer) Shutdown(ctx context.Context) error {
	select {
	case <-s.shutdownChan:
		return nil
	default:
		close(s.shutdownChan)
	}

	if err := s.broadcaster.BroadcastToAll(network.EventError, network.ErrorPayload{Message: "Server is shutting down."}); err != nil {
		logger.Log.Debugf("shutdown notice: %v", err)
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	var open []*session.Session
	s.sessionManager.Each(func(sess *session.Session) {
		open = append(open, sess)
	})
	for _, sess := range open {
		sess.Close()
	}
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.allowedOrigins, origin)
}

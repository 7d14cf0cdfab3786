package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/services"
)

// ServiceName is the name RoomService is registered under.
const ServiceName = "RoomService"

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer creates a new RPC server listening on addr.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   rpc.NewServer(),
	}, nil
}

// Register exposes rcvr under name.
func (s *Server) Register(name string, rcvr any) error {
	return s.server.RegisterName(name, rcvr)
}

// Addr is the address actually bound.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService is the admission surface used by the session service.
//
// Methods follow the net/rpc signature: exported method, exported
// arguments, second argument is a pointer, return type is error.
type RoomService struct {
	admission *services.AdmissionService
	history   *services.HistoryService
}

// NewRoomService creates a new RoomService.
func NewRoomService(admission *services.AdmissionService, history *services.HistoryService) *RoomService {
	return &RoomService{admission: admission, history: history}
}

type CreateRoomArgs struct {
	DisplayName string
	AvatarID    string
}

type JoinRoomArgs struct {
	GameCode    string
	DisplayName string
	AvatarID    string
}

// AdmissionReply carries the seat and the token to store in the cookie.
type AdmissionReply struct {
	GameCode string
	Player   models.Player
	Token    string
}

type TokenArgs struct {
	Token string
}

type VerifySessionReply struct {
	GameCode string
	PlayerID string
	IsHost   bool
}

type LeaveRoomReply struct {
	Left bool
}

type RecentGamesArgs struct {
	Limit int
}

type GamesReply struct {
	Games []models.GameRecord
}

type GameArgs struct {
	ID uint
}

type GameReply struct {
	Game models.GameRecord
}

type PlayerStatsArgs struct {
	PlayerID string
}

type PlayerStatsReply struct {
	Stats models.PlayerStats
}

func (rs *RoomService) CreateRoom(args *CreateRoomArgs, reply *AdmissionReply) error {
	adm, err := rs.admission.CreateRoom(args.DisplayName, args.AvatarID)
	if err != nil {
		return err
	}
	*reply = AdmissionReply{GameCode: adm.GameCode, Player: adm.Player, Token: adm.Token}
	return nil
}

func (rs *RoomService) JoinRoom(args *JoinRoomArgs, reply *AdmissionReply) error {
	adm, err := rs.admission.JoinRoom(args.GameCode, args.DisplayName, args.AvatarID)
	if err != nil {
		return err
	}
	*reply = AdmissionReply{GameCode: adm.GameCode, Player: adm.Player, Token: adm.Token}
	return nil
}

func (rs *RoomService) VerifySession(args *TokenArgs, reply *VerifySessionReply) error {
	claims, err := rs.admission.VerifySession(args.Token)
	if err != nil {
		return err
	}
	*reply = VerifySessionReply{GameCode: claims.GameCode, PlayerID: claims.PlayerID, IsHost: claims.IsHost}
	return nil
}

func (rs *RoomService) LeaveRoom(args *TokenArgs, reply *LeaveRoomReply) error {
	if err := rs.admission.LeaveRoom(args.Token); err != nil {
		return err
	}
	reply.Left = true
	return nil
}

func (rs *RoomService) RecentGames(args *RecentGamesArgs, reply *GamesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	games, err := rs.history.RecentGames(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}

func (rs *RoomService) Game(args *GameArgs, reply *GameReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	game, err := rs.history.Game(ctx, args.ID)
	if err != nil {
		return err
	}
	reply.Game = game
	return nil
}

func (rs *RoomService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	if args.PlayerID == "" {
		return models.ErrInvalidRequest
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := rs.history.PlayerStats(ctx, args.PlayerID)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}

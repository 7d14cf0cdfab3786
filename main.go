package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/broadcast"
	"github.com/wfunc/simonserver/config"
	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/monitor"
	"github.com/wfunc/simonserver/persistence"
	"github.com/wfunc/simonserver/room"
	"github.com/wfunc/simonserver/rpc"
	"github.com/wfunc/simonserver/server"
	"github.com/wfunc/simonserver/services"
	"github.com/wfunc/simonserver/session"
	"github.com/wfunc/simonserver/timer"
)

const (
	releaseVersion = "0.3.0"
	metricsPrefix  = "simon"
	statsInterval  = 5 * time.Second
	archiveTimeout = 10 * time.Second
)

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var (
		configDir string
		envFile   string
	)

	cmd := &cobra.Command{
		Use:           "simonserver",
		Short:         "Multiplayer Simon Says game server.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadConfig(v, configDir)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configDir, "config", "c", ".", "directory holding config.yaml")
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	fs.String("http-address", "", "websocket/HTTP listen address (env: SIMON_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-address", "", "room admission RPC listen address (env: SIMON_SERVER_RPC_ADDRESS)")
	fs.String("log-level", "", "debug, info, warn or error (env: SIMON_LOG_LEVEL)")
	cobra.CheckErr(config.BindFlags(v, fs))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("simonserver v{{.Version}}\n")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize game archive
	recorder, err := persistence.Open(ctx, cfg.Database.Driver, cfg.Database.ConnString())
	if err != nil {
		return err
	}
	defer recorder.Close()
	logger.Log.Infof("Game archive ready (%s).", cfg.Database.Driver)

	history := services.NewHistoryService(recorder)
	mon := monitor.NewMonitor(metricsPrefix)
	timers := timer.NewTimerManager(10 * time.Millisecond)
	defer timers.Stop()

	sessions := session.NewManager()
	broadcaster := broadcast.NewRoomBroadcaster(sessions)

	rooms := room.NewRoomManager(room.ManagerConfig{
		Settings:       cfg.Game.Settings(),
		ReconnectGrace: cfg.Game.ReconnectGrace,
		EmptyRoomGrace: cfg.Game.EmptyRoomGrace,
		MaxRooms:       cfg.Server.MaxRooms,
		Broadcaster:    broadcaster,
		Timers:         timers,
		OnFinished: func(result models.GameResult) {
			mon.IncGamesFinished(result.Solo)
			archiveCtx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if _, err := history.Record(archiveCtx, result); err != nil {
				logger.Log.Errorf("room %s: archive game: %v", result.RoomCode, err)
			}
		},
	})
	defer rooms.Close()

	statsTimer := timers.AddTimer(statsInterval, statsInterval, func() {
		mon.SetActiveRooms(rooms.Count())
	})
	defer timers.RemoveTimer(statsTimer)

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = uuid.NewString()
		logger.Log.Warn("auth.secret is not set, session tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	// 初始化RPC服务器
	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return err
	}
	roomService := rpc.NewRoomService(services.NewAdmissionService(rooms, tokens), history)
	if err := rpcServer.Register(rpc.ServiceName, roomService); err != nil {
		return err
	}
	go rpcServer.Start()
	defer rpcServer.Stop()

	gameServer := server.NewGameServer(server.Options{
		Address:        cfg.Server.HTTPAddress,
		Rooms:          rooms,
		Sessions:       sessions,
		Broadcaster:    broadcaster,
		Monitor:        mon,
		Tokens:         tokens,
		RequireToken:   cfg.Auth.RequireToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PublicURL:      cfg.Server.PublicURL,
		Session: session.Options{
			SendBuffer:    cfg.RateLimit.SendBuffer,
			PingInterval:  cfg.RateLimit.PingInterval,
			RatePerSecond: cfg.RateLimit.MessagesPerSecond,
			Burst:         cfg.RateLimit.Burst,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Log.Info("Shutting down.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-cluster/internal/config"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/entity"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/registry"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/repository"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/service"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/transport/redis"
	"github.com/rocketscienceinc/tictactoe-cluster/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-cluster/transport/peer"
	"github.com/rocketscienceinc/tictactoe-cluster/transport/rest"
	"github.com/rocketscienceinc/tictactoe-cluster/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the node until SIGINT or SIGTERM or until a server fails.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	self := entity.Node{ID: conf.Node.ID, PeerAddr: conf.Node.PeerAddr, PublicURL: conf.Node.PublicURL}

	presence := repository.NewPresenceRepository(logger, redisStorage.Connection, self, conf.Cluster.NodeTTL)
	bus := redis.NewBus(logger, redisStorage.Connection)

	peerServer, err := peer.NewServer(logger, net.JoinHostPort("", conf.PeerPort))
	if err != nil {
		return fmt.Errorf("could not start peer server: %w", err)
	}

	peerClient := peer.NewClient(logger, presence)
	defer func() {
		if err = peerClient.Close(); err != nil {
			log.Error("could not close peer connections", "error", err)
		}
	}()

	connections := registry.NewConnections()
	games := registry.NewGames(conf.Node.ID)

	lobby := service.NewLobbyService(logger, conf.Node.ID, connections, games, bus, presence)
	challenges := service.NewChallengeService(logger, connections, games, lobby)
	gameplay := service.NewGamePlayService(logger, connections, games, bus)
	migration := service.NewMigrationService(logger, conf.Node.ID, conf.Cluster.PeerTimeout, connections, games, presence, peerClient)

	gameUseCase := usecase.NewGameManager(logger, lobby, challenges, gameplay, migration)

	peer.Handle(peerServer, service.EndpointNewGame, gameUseCase.PeerNewGame)
	peer.Handle(peerServer, service.EndpointMove, gameUseCase.PeerMove)
	peer.Handle(peerServer, service.EndpointAdoptGame, gameUseCase.PeerAdoptGame)
	peer.Handle(peerServer, service.EndpointDropGame, gameUseCase.PeerDropGame)

	wsServer := websocket.New(logger, gameUseCase, conf.Client.RateLimit, conf.Client.RateBurst)
	router := rest.NewRouter(rest.NewPingHandler(conf.Node.ID), rest.NewGameHandler(logger, gameUseCase))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return presence.Heartbeat(ctx)
	})

	group.Go(func() error {
		return bus.Run(ctx, wsServer.Broadcast)
	})

	group.Go(func() error {
		return peerServer.Serve(ctx)
	})

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, logger, conf.HTTPPort, router); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			return fmt.Errorf("WebSocket server error: %w", wsErr)
		}
		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

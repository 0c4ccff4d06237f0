package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elmchat/elm-chat/internal/cassandra"
	"github.com/elmchat/elm-chat/internal/config"
	chatgrpc "github.com/elmchat/elm-chat/internal/grpc"
	"github.com/elmchat/elm-chat/internal/handler"
	"github.com/elmchat/elm-chat/internal/hub"
	"github.com/elmchat/elm-chat/internal/mailer"
	"github.com/elmchat/elm-chat/internal/membership"
	"github.com/elmchat/elm-chat/internal/metrics"
	"github.com/elmchat/elm-chat/internal/repository"
	"github.com/elmchat/elm-chat/internal/service"
	"github.com/elmchat/elm-chat/pkg/jwt"
	pkglog "github.com/elmchat/elm-chat/pkg/log"
	"github.com/elmchat/elm-chat/pkg/middleware"
	"github.com/elmchat/elm-chat/pkg/pubsub"
	"github.com/elmchat/elm-chat/pkg/storage"
)

const serviceName = "elm-chat"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and gRPC health servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: serviceName,
	})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = pkglog.WithLogger(ctx, logger)

	cass, err := cassandra.NewClient(cfg.Cassandra)
	if err != nil {
		return err
	}
	defer cass.Close()
	logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Str("keyspace", cfg.Cassandra.Keyspace).Msg("connected to cassandra")

	messageLogs := repository.NewCassandraMessageLogRepository(cass.Session())
	users := repository.NewCassandraUserRepository(cass.Session())

	tracker, closeTracker, err := newTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	store, err := storage.New(ctx, cfg.Storage.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("auth.jwt_secret is empty, using a random secret; tokens will not survive a restart")
	}
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	userSvc := service.NewUserService(users, tokens, store, mailer.New(cfg.Mail), service.UserServiceConfig{
		Pepper:        cfg.Auth.Pepper,
		BcryptCost:    cfg.Auth.BcryptCost,
		AvatarURLTTL:  cfg.Storage.AvatarURLTTL,
		AvatarSize:    cfg.Storage.AvatarSize,
		AvatarQuality: cfg.Storage.AvatarQuality,
	})
	historySvc := service.NewHistoryService(messageLogs)

	wsHub := hub.NewHub()
	broadcaster, closeBus, err := newBroadcaster(ctx, cfg, wsHub)
	if err != nil {
		return err
	}
	defer closeBus()
	chatSvc := service.NewChatService(broadcaster, tracker, userSvc, messageLogs)

	// REST
	if pkglog.ParseLevel(cfg.Log.Level) > pkglog.ParseLevel("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(pkglog.GinMiddleware(logger, "/health"))
	if local, ok := store.(*storage.LocalStorage); ok {
		engine.Static("/files", local.BasePath())
	}
	handler.NewHandler(historySvc, userSvc, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(engine)

	// WebSocket and metrics bypass gin.
	router := mux.NewRouter()
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, tokens, cfg.WebSocket, cfg.Server.AllowedOrigins, cfg.Auth.RequireSocketToken)
	wsHandler.RegisterRoutes(router, pkglog.HTTPMiddleware(logger))
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(engine)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var grpcServer *chatgrpc.Server
	if cfg.GRPC.Enabled {
		grpcServer, err = chatgrpc.NewServer(fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port), logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("address", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(grpcServer.Serve)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("elm-chat stopped")
	return nil
}

func newTracker(ctx context.Context, cfg *config.Config) (membership.Tracker, func(), error) {
	l := pkglog.Ctx(ctx)

	switch cfg.Membership.Backend {
	case "", "memory":
		l.Info().Msg("using in-memory membership tracker")
		return membership.NewMemoryTracker(), func() {}, nil

	case "redis":
		instanceID := cfg.Membership.InstanceID
		if instanceID == "" {
			if host, err := os.Hostname(); err == nil {
				instanceID = host
			} else {
				instanceID = uuid.New().String()
			}
		}
		t, err := membership.NewRedisTracker(ctx, cfg.Redis, instanceID)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {
			if err := t.Close(); err != nil {
				l.Warn().Err(err).Msg("failed to close membership tracker")
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown membership backend %q", cfg.Membership.Backend)
	}
}

// newBroadcaster returns the hub, mirrored to the Redis event channel when
// events are enabled.
func newBroadcaster(ctx context.Context, cfg *config.Config, h *hub.Hub) (service.Broadcaster, func(), error) {
	if !cfg.Events.Enabled {
		return h, func() {}, nil
	}

	l := pkglog.Ctx(ctx)
	bus, err := pubsub.NewRedisPublisher(ctx, pubsub.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	l.Info().Str("channel", cfg.Events.Channel).Msg("publishing room events")

	pub := service.NewPublishingBroadcaster(h, bus, cfg.Events.Channel, cfg.Events.Buffer)
	return pub, func() {
		pub.Close()
		if err := bus.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close event publisher")
		}
	}, nil
}

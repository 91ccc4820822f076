package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/chatlog-service/internal/config"
	"github.com/weiawesome/chatlog-service/internal/handler"
	"github.com/weiawesome/chatlog-service/internal/hub"
	"github.com/weiawesome/chatlog-service/internal/publisher"
	"github.com/weiawesome/chatlog-service/internal/service"
	"github.com/weiawesome/chatlog-service/internal/store"
	"github.com/weiawesome/chatlog-service/pkg/database"
	"github.com/weiawesome/chatlog-service/pkg/jwt"
	pkglog "github.com/weiawesome/chatlog-service/pkg/log"
	"github.com/weiawesome/chatlog-service/pkg/middleware"
	"github.com/weiawesome/chatlog-service/pkg/pubsub"
)

func main() {
	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if len(os.Args) > 1 {
		cfg, err = config.LoadFile(os.Args[1])
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open chat log store")
	}
	defer logStore.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("chat log store ready")

	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to initialize pubsub")
	}
	defer bus.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub connected")

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	auth := middleware.NewAuthMiddleware(tokens)

	pub := publisher.New(bus)
	chatSvc := service.NewChatService(logStore, pub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsHub := hub.NewHub(cfg.WebSocket)
	if err := wsHub.Attach(ctx, bus); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe hub to pubsub")
	}

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHTTPHandler(chatSvc, pub).RegisterRoutes(r, auth)
	handler.NewWSHandler(wsHub, chatSvc, pub, cfg.WebSocket).RegisterRoutes(r, auth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("chatlog-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down chatlog-service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("chatlog-service stopped with error")
		return
	}
	logger.Info().Msg("chatlog-service stopped")
}

func openStore(cfg *config.Config) (store.ChatLogStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverBadger:
		db, err := store.OpenBadger(cfg.Badger.Path, cfg.Badger.InMemory)
		if err != nil {
			return nil, err
		}
		return store.NewBadgerStore(db), nil

	default:
		db, err := database.New(cfg.DatabaseOptions())
		if err != nil {
			return nil, err
		}
		if err := store.CheckWindowFunctions(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
		if err := store.Migrate(db); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
		return store.NewGormStore(db), nil
	}
}

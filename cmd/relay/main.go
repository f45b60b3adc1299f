package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/relay/audit"
	"github.com/cb3tech/moshcast-live/internal/relay/handler"
	"github.com/cb3tech/moshcast-live/internal/relay/hub"
	"github.com/cb3tech/moshcast-live/internal/relay/service"
	"github.com/cb3tech/moshcast-live/internal/relay/store"
	"github.com/cb3tech/moshcast-live/pkg/jwt"
	pkglog "github.com/cb3tech/moshcast-live/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "relay",
	})
	logger := pkglog.L()

	// Session store: memory by default, redis when several relay
	// instances need to agree on what is live.
	var sessionStore store.SessionStore
	switch cfg.Session.Store {
	case "redis":
		sessionStore, err = store.NewRedisStore(cfg.Redis, cfg.Session.TTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis session store connected")
	default:
		sessionStore = store.NewMemoryStore()
	}
	defer sessionStore.Close()

	var recorder audit.Recorder
	if cfg.Kafka.Enabled {
		recorder, err = audit.NewKafkaRecorder(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka recorder")
		}
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("chat audit enabled")
	} else {
		recorder = audit.NewNopRecorder()
	}

	var tokens *jwt.Manager
	if cfg.Auth.Secret != "" {
		tokens = jwt.NewManager(cfg.Auth.Secret, cfg.Auth.TokenDuration, cfg.Auth.Issuer)
	} else {
		logger.Warn().Msg("auth secret not set; all connections are guests")
	}

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	streamSvc := service.NewStreamService(wsHub, sessionStore, recorder, tokens, cfg.Sync)
	defer streamSvc.Stop()

	wsHandler := handler.NewWSHandler(wsHub, streamSvc, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(streamSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay stopped")
}

// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/barrage-gg/barrage/internal/auth"
	"github.com/barrage-gg/barrage/internal/config"
	"github.com/barrage-gg/barrage/internal/handlers"
	"github.com/barrage-gg/barrage/internal/history"
	"github.com/barrage-gg/barrage/internal/lobby"
	"github.com/barrage-gg/barrage/internal/middleware"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()

	// Match history is optional: the lobby server stays up even when Redis
	// is not reachable, results are just not persisted.
	var results lobby.ResultSink
	publisher, err := history.NewPublisher(cfg.RedisAddr, cfg.RedisDB, history.DefaultQueueName)
	if err != nil {
		logger.Warnf("match history disabled: %v", err)
	} else {
		results = publisher
		defer publisher.Close()
	}

	gs := handlers.NewGatewayServer(handlers.GatewayConfig{
		CORSOrigin:      cfg.CORSOrigin,
		DisconnectGrace: cfg.DisconnectGrace,
		SweepInterval:   cfg.LobbySweepInterval,
		LobbyIdleTTL:    cfg.LobbyIdleTTL,
	}, logger, results)

	mux := http.NewServeMux()

	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(gs),
	)))
	mux.Handle("/lobbies", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListLobbiesHandler(gs),
	)))
	mux.HandleFunc("/healthz", handlers.HealthzHandler())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	gs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown error: %v", err)
	}
}

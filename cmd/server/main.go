// Package main provides the game server binary: websocket matchmaking and
// real-time match simulation behind a single HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openpong/server/internal/config"
	"github.com/openpong/server/internal/game"
	"github.com/openpong/server/internal/matchmaking"
	"github.com/openpong/server/internal/observability"
	"github.com/openpong/server/internal/server"
	"github.com/openpong/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("tick_rate", cfg.Game.TickRate),
		zap.Duration("heartbeat_interval", cfg.Matchmaking.HeartbeatInterval),
	)

	bridge := matchmaking.NewHTTPBridge(cfg.Bridge, logger)
	pool := matchmaking.NewPool(bridge, logger)
	registry := game.NewRegistry(cfg.Game, logger)
	monitor := ws.NewMonitor(cfg.Matchmaking.HeartbeatInterval, logger)

	router := mux.NewRouter()
	router.Handle("/matchmaking",
		matchmaking.NewHandler(pool, monitor, cfg.Server.AllowedOrigins, logger))
	router.Handle("/game/{gameId}",
		game.NewHandler(registry, monitor, cfg.Server.AllowedOrigins, logger))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(router)

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler,
		ReadTimeout:  0, // websocket connections stay open indefinitely
		WriteTimeout: 0,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	lifecycle.Add("heartbeat", &server.FuncService{
		StartFn: func() error {
			monitor.Start(ctx)
			return nil
		},
		StopFn: monitor.Stop,
	})

	lifecycle.Add("rooms", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn:  registry.StopAll,
	})

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("lifecycle failed", zap.Error(err))
	}
}

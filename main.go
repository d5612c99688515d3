package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"number-duel-server/api"
	"number-duel-server/auth"
	"number-duel-server/config"
	"number-duel-server/event"
	"number-duel-server/loghandler"
	"number-duel-server/matchmaking"
	"number-duel-server/reconcile"
	"number-duel-server/storage"
	"number-duel-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables", "tag", "main")
	}

	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration failed", "tag", "main", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "tag", "main",
		"http_port", cfg.HTTPPort,
		"turn_expiry", cfg.TurnExpiry(),
		"match_sample_size", cfg.MatchSampleSize,
		"sweep_interval", cfg.SweepInterval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connecting to database failed", "tag", "main", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(cfg.AuthSecret, cfg.AuthJWKSURL)
	if err != nil {
		slog.Error("setting up auth failed", "tag", "main", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(store, tokens)
	registry := event.NewRegistry(cfg.TurnExpiry(), time.Now)
	dispatcher := event.NewDispatcher(registry, hub)
	hub.SetDispatcher(dispatcher)

	matchmaker := matchmaking.NewService(cfg.MatchSampleSize, cfg.TurnExpiry(), dispatcher)
	reconciler := reconcile.New(cfg.TurnExpiry())
	sweeper := reconcile.NewSweeper(store, reconciler)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		slog.Error("creating scheduler failed", "tag", "main", "error", err)
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SweepInterval()),
		gocron.NewTask(func() { sweeper.Sweep(ctx) }),
	)
	if err != nil {
		slog.Error("scheduling expiry sweep failed", "tag", "main", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	mux := http.NewServeMux()
	api.NewHandler(store, matchmaker, reconciler, tokens).Routes(mux)
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
	}
	go func() {
		slog.Info("server listening", "tag", "main", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "tag", "main", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received", "tag", "main")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "tag", "main", "error", err)
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizsim/internal/api"
	"bizsim/internal/archive"
	"bizsim/internal/config"
	"bizsim/internal/game"
	"bizsim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Error("load rules failed", "err", err)
		os.Exit(1)
	}
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	var rec game.Recorder = game.NoopRecorder{}
	if cfg.ArchiveDir != "" {
		rec = archive.NewRecorder(cfg.ArchiveDir)
	}
	defer rec.Close()

	gameSvc := game.NewService(st, rules, logger, game.ServiceOptions{
		RoundDuration: cfg.RoundDuration,
		Recorder:      rec,
	})
	server, err := api.New(logger, gameSvc)
	if err != nil {
		logger.Error("api init failed", "err", err)
		os.Exit(1)
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("bizsim api listening", "addr", cfg.Addr, "round_duration", cfg.RoundDuration.String())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

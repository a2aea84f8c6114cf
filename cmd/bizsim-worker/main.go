package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bizsim/internal/archive"
	"bizsim/internal/config"
	"bizsim/internal/game"
	"bizsim/internal/scheduler"
	"bizsim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	svc := game.NewService(st, rules, logger, game.ServiceOptions{Recorder: rec})
	sched := scheduler.New(ctx, svc, logger)

	if cfg.RunOnce {
		if _, err := sched.SweepNow(); err != nil {
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	if err := sched.Register(cfg.SweepSpec); err != nil {
		logger.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	logger.Info("worker started", "sweep_spec", cfg.SweepSpec)
	<-ctx.Done()
	sched.Stop()
	logger.Info("worker shutdown")
}

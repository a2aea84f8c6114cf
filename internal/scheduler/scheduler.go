// Package scheduler closes rounds whose deadline has passed on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"bizsim/internal/game"

	"github.com/robfig/cron/v3"
)

type Sweeper interface {
	CloseDueRounds(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	svc  Sweeper
	log  *slog.Logger
	ctx  context.Context
}

var _ Sweeper = (*game.Service)(nil)

func New(ctx context.Context, svc Sweeper, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:  svc,
		log:  logger,
		ctx:  ctx,
	}
}

func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.SweepNow() }); err != nil {
		return fmt.Errorf("register sweep %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) SweepNow() (int, error) {
	closed, err := s.svc.CloseDueRounds(s.ctx)
	if err != nil {
		s.log.Error("sweep failed", "closed", closed, "err", err)
		return closed, err
	}
	if closed > 0 {
		s.log.Info("sweep complete", "closed", closed)
	}
	return closed, nil
}

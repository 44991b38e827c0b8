// Package jobs runs the periodic auto-release sweep. The sweep itself lives
// in the escrow service; this package only decides when it fires.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/escrow"
)

// Sweeper is the escrow service subset the scheduler drives.
type Sweeper interface {
	SweepAutoRelease(ctx context.Context) (*escrow.SweepResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	log     *slog.Logger
}

// NewScheduler wires the sweep onto a cron schedule ("@every 5m" style
// expressions included). The returned scheduler is idle until Start.
func NewScheduler(sweeper Sweeper, schedule string, timeout time.Duration, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		timeout: timeout,
		log:     log,
	}
	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.sweeper.SweepAutoRelease(ctx)
	if err != nil {
		s.log.Error("scheduled sweep failed", "error", err)
		return
	}
	if res.ReleasedCount > 0 {
		s.log.Info("scheduled sweep released escrows", "released", res.ReleasedCount)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

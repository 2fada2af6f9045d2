package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the population scan and the auto-file pass on cron schedules.
// A run that is still going when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	orch   *Orchestrator
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewScheduler(orch *Orchestrator, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("cron")
	cl := cronLogger{l: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, orch: orch, cfg: cfg, ctx: ctx, cancel: cancel, logger: logger}

	if _, err := c.AddFunc(cfg.ScanSchedule, s.scanJob); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid scan schedule %q: %w", cfg.ScanSchedule, err)
	}
	if _, err := c.AddFunc(cfg.AutoFileSchedule, s.autoFileJob); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid auto-file schedule %q: %w", cfg.AutoFileSchedule, err)
	}
	return s, nil
}

func (s *Scheduler) scanJob() {
	rep, err := s.orch.RunPopulationScan(s.ctx)
	if err != nil {
		s.logger.Error("population scan aborted", zap.Error(err),
			zap.Int("scanned", rep.UsersScanned), zap.Int("failed", rep.UsersFailed))
	}
}

func (s *Scheduler) autoFileJob() {
	rep, err := s.orch.RunAutoFilePass(s.ctx)
	if err != nil {
		s.logger.Error("auto-file pass failed", zap.Error(err))
		return
	}
	s.logger.Info("auto-file pass complete",
		zap.Int("eligible", rep.Eligible),
		zap.Int("filed", rep.Filed),
		zap.Int("failed", rep.Failed))
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started",
		zap.String("scan_schedule", s.cfg.ScanSchedule),
		zap.String("auto_file_schedule", s.cfg.AutoFileSchedule))
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

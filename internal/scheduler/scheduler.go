package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers a cycle every interval using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	runner     *Runner
	spec       string
	runOnStart bool
	request    CycleRequest
	logger     *zap.Logger
}

// Config controls the schedule.
type Config struct {
	Interval   time.Duration
	RunOnStart bool
	Request    CycleRequest
}

// New creates a Scheduler. Ticks that arrive while a cycle is running are skipped.
func New(runner *Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("scan interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cron")
	cl := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:     runner,
		spec:       fmt.Sprintf("@every %s", cfg.Interval),
		runOnStart: cfg.RunOnStart,
		request:    cfg.Request,
		logger:     logger,
	}, nil
}

// Spec returns the cron spec in use.
func (s *Scheduler) Spec() string { return s.spec }

// Start registers the cycle job and starts the cron loop. ctx bounds every cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	if s.runOnStart {
		go s.run(ctx)
	}
	return nil
}

// Stop stops scheduling and waits for a running cycle, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out waiting for running cycle")
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx, s.request); err != nil {
		s.logger.Error("scheduled cycle failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Package scheduler triggers ingestion runs on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mfriedel/whatson/internal/metrics"
)

// Runner is the unit of scheduled work, implemented by the ingest pipeline.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

// Config controls Scheduler behavior.
type Config struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

// Scheduler invokes the runner periodically. A failed run is logged and the
// loop continues; the write path has no caller to report to beyond logs.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *zap.Logger
}

// New constructs a Scheduler.
func New(runner Runner, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, cfg: cfg, logger: logger}
}

// Run blocks, triggering runs until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	start := time.Now()
	accepted, err := s.runner.Run(runCtx)
	if err != nil {
		metrics.IngestRun("error")
		s.logger.Error("scheduled ingestion failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return
	}
	metrics.IngestRun("success")
	s.logger.Info("scheduled ingestion succeeded",
		zap.Int("accepted", accepted),
		zap.Duration("elapsed", time.Since(start)),
	)
}

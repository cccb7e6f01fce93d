package maintenance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphmem/pkg/logger"
)

// Scheduler runs the maintenance passes as independent background jobs.
// Each pass re-scans current graph state on every run, so a cancelled run
// needs no bookkeeping; passes themselves stop between group transactions
// when the context ends, never mid-transaction.
type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	policy     RetentionPolicy
	minOverlap int
	logger     *zap.Logger
}

// NewScheduler creates a background maintenance scheduler
func NewScheduler(dispatcher *Dispatcher, interval time.Duration, policy RetentionPolicy, minOverlap int) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		interval:   interval,
		policy:     policy,
		minOverlap: minOverlap,
		logger:     logger.Get(),
	}
}

// Run blocks until ctx is cancelled, running each pass on its own ticker.
// Passes are independently schedulable; a failing pass is logged and retried
// on its next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	commands := []Command{
		{Op: OpMergeEntities},
		{Op: OpPruneMessages, SessionID: AllSessions, Policy: &s.policy},
		{Op: OpConsolidateNotes, MinOverlap: s.minOverlap},
		{Op: OpRemoveOrphans},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, cmd := range commands {
		cmd := cmd
		if cmd.Op == OpPruneMessages && !s.policy.Enabled() {
			continue
		}
		g.Go(func() error {
			return s.runLoop(ctx, cmd)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) runLoop(ctx context.Context, cmd Command) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		start := time.Now()
		report, err := s.dispatcher.Dispatch(ctx, cmd)
		if err != nil {
			s.logger.Error("Maintenance pass failed",
				zap.String("op", cmd.Op),
				zap.Error(err),
			)
			continue
		}

		fields := []zap.Field{
			zap.String("op", cmd.Op),
			zap.Duration("took", time.Since(start)),
		}
		if report.Result != nil {
			fields = append(fields,
				zap.Int("succeeded", report.Result.Succeeded),
				zap.Int("skipped", report.Result.Skipped),
				zap.Int("failed", report.Result.Failed),
			)
		}
		s.logger.Info("Maintenance pass completed", fields...)
	}
}
